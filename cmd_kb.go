package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/duynguyendang/vultester/pkg/datalog"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/export"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/duynguyendang/vultester/pkg/repl"
	"github.com/spf13/cobra"
)

func newRulesCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the rules of the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			rules := svc.RulesByCategory(category)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSEVERITY\tIF\tTHEN")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Severity, strings.Join(r.Conditions, ", "), r.Consequence)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d rule(s)\n", len(rules))
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only rules of this category (PORT, SSL, SSH, PERM, SOFT, NET)")
	return cmd
}

func newRuleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rule <id>",
		Short: "Show one rule and its remediation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			d, err := svc.GetRule(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s]\n%s\n\n", d.Rule.ID, d.Rule.Severity, d.Rule.Description)
			fmt.Fprintf(out, "Clause:         %s\n", datalog.Clause{Head: d.Rule.Consequence, Body: d.Rule.Conditions})
			fmt.Fprintf(out, "Recommendation: %s\n", d.Recommendation)
			return nil
		},
	}
}

func newFactsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "facts",
		Short: "List the facts a scanner or user can report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			list := svc.Facts()
			out := cmd.OutOrStdout()
			for _, cat := range list.Categories {
				fmt.Fprintf(out, "%s (%s)\n", cat.Label, cat.ID)
				for _, f := range list.Facts {
					if f.Category == cat.ID {
						fmt.Fprintf(out, "   %-28s %s\n", f.Fact, f.Label)
					}
				}
			}
			fmt.Fprintf(out, "\n%d fact(s)\n", list.Count)
			return nil
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a knowledge base file",
		Long: `Loads a YAML knowledge base and reports structural errors. Derivation
cycles are reported but do not fail validation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := kb.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range base.Cycles() {
				fmt.Fprintf(out, "warning: cycle %s\n", strings.Join(c, " -> "))
			}
			fmt.Fprintf(out, "✅ %s: %d rule(s), %d categories\n", args[0], base.Len(), len(base.Categories()))
			return nil
		},
	}
}

func newGraphCmd(a *app) *cobra.Command {
	var (
		outFile string
		facts   []string
		method  string
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the rule graph, or the fired part of a run, as D3 JSON",
		Example: `  vultester graph --out rules.json
  vultester graph --facts port_23_open,ssh_root_login_enabled --method mixed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}

			graph := svc.RuleGraph()
			if len(facts) > 0 {
				m, err := engine.ParseMethod(method)
				if err != nil {
					return err
				}
				res, err := svc.Evaluate(cmd.Context(), facts, m)
				if err != nil {
					return err
				}
				graph = svc.TraceGraph(res)
			}

			if outFile != "" {
				if err := export.SaveD3Graph(graph, outFile); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Exported %d nodes and %d links to %s\n", len(graph.Nodes), len(graph.Links), outFile)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(graph)
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringSliceVar(&facts, "facts", nil, "evaluate these facts and export only the fired rules")
	cmd.Flags().StringVarP(&method, "method", "m", string(engine.Forward), "method used with --facts")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored runs (needs --history-dir or VULTESTER_HISTORY_DIR)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := svc.Runs(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "📭 No runs recorded")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tTIME\tMETHOD\tSTATUS\tFACTS\tFIRED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", r.RunID, r.CreatedAt.Format(time.RFC3339), r.Method, r.Status, r.Facts, r.RulesFired)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list, 0 for all")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := svc.Run(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for facts: %s\n", rec.CreatedAt.Format(time.RFC3339), strings.Join(rec.Facts, ", "))
			repl.PrintReport(cmd.OutOrStdout(), rec.Result, false)
			return nil
		},
	}
	cmd.AddCommand(show)
	return cmd
}
