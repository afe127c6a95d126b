package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/duynguyendang/vultester/pkg/mcp"
	"github.com/duynguyendang/vultester/pkg/repl"
	"github.com/duynguyendang/vultester/pkg/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("starting REST API server", zap.String("addr", a.cfg.Addr()))
			return server.NewServer(svc, a.logger).Run(ctx, a.cfg.Addr())
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return mcp.Run(cmd.Context(), svc, version, a.logger)
		},
	}
}

func newREPLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Build a fact set interactively and analyze it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			return repl.New(svc, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
		},
	}
}
