package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/duynguyendang/vultester/internal/config"
	"github.com/duynguyendang/vultester/internal/logging"
	"github.com/duynguyendang/vultester/internal/manager"
	"github.com/duynguyendang/vultester/pkg/history"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/duynguyendang/vultester/pkg/service"
	"github.com/duynguyendang/vultester/pkg/service/ai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	verbose    bool
	kbPath     string
	catPath    string
	historyDir string
	closers    []io.Closer
}

func newApp() *app {
	return &app{logger: zap.NewNop()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "vultester",
		Short: "Server vulnerability expert system",
		Long: `vultester evaluates observed server facts against a rule base of
known vulnerabilities using forward, backward or mixed chaining, and reports
findings by severity with remediation advice.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if a.kbPath != "" {
				cfg.KnowledgeBase = a.kbPath
			}
			if a.catPath != "" {
				cfg.Catalog = a.catPath
			}
			if a.historyDir != "" {
				cfg.HistoryDir = a.historyDir
			}
			if a.verbose {
				cfg.LogLevel = "debug"
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&a.kbPath, "kb", "", "knowledge base YAML (default: embedded rules)")
	root.PersistentFlags().StringVar(&a.catPath, "catalog", "", "fact catalog YAML (default: embedded catalog)")
	root.PersistentFlags().StringVar(&a.historyDir, "history-dir", "", "keep a run history in this directory")

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newREPLCmd(a),
		newAnalyzeCmd(a),
		newScanCmd(a),
		newRulesCmd(a),
		newRuleCmd(a),
		newFactsCmd(a),
		newValidateCmd(a),
		newGraphCmd(a),
		newHistoryCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// service builds the analysis service from the loaded settings. Narration is
// enabled when a Gemini key is configured; failing to set it up is logged,
// not fatal.
func (a *app) service(ctx context.Context) (*service.AnalysisService, error) {
	base, err := kb.Open(a.cfg.KnowledgeBase)
	if err != nil {
		return nil, err
	}
	catalog, err := kb.OpenCatalog(a.cfg.Catalog)
	if err != nil {
		return nil, err
	}
	if cycles := base.Cycles(); len(cycles) > 0 {
		a.logger.Warn("knowledge base has derivation cycles", zap.Int("count", len(cycles)))
	}

	svc := service.NewAnalysisService(base, catalog, manager.NewReportCache(a.cfg.CacheSize), a.logger)
	if a.cfg.HistoryDir != "" {
		hcfg := history.DefaultConfig(a.cfg.HistoryDir)
		hcfg.Retention = a.cfg.HistoryKeep
		store, err := history.Open(hcfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		svc.SetRunStore(store)
	}
	if a.cfg.AIEnabled() {
		narrator, err := ai.NewGeminiNarrator(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel, a.logger)
		if err != nil {
			a.logger.Warn("report narration disabled", zap.Error(err))
		} else {
			svc.SetNarrator(narrator)
		}
	}
	a.logger.Debug("knowledge base loaded",
		zap.String("version", base.Version()),
		zap.Int("rules", base.Len()),
		zap.Int("facts", len(catalog.Facts())))
	return svc, nil
}

// close releases what service opened. It runs after Execute because
// PersistentPostRun is skipped when a command fails.
func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func main() {
	a := newApp()
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}
