package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/duynguyendang/vultester/pkg/datalog"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/ingest"
	"github.com/duynguyendang/vultester/pkg/repl"
	"github.com/duynguyendang/vultester/pkg/service"
	"github.com/spf13/cobra"
)

// reportOptions are shared by analyze and scan.
type reportOptions struct {
	method  string
	asJSON  bool
	trace   bool
	explain bool
}

func (o *reportOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.method, "method", "m", string(engine.Forward), "forward, backward or mixed")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&o.trace, "trace", false, "include the inference trace in the summary")
	cmd.Flags().BoolVar(&o.explain, "explain", false, "append a narrative explanation (needs GEMINI_API_KEY)")
}

func (o *reportOptions) run(cmd *cobra.Command, svc *service.AnalysisService, facts []string) error {
	method, err := engine.ParseMethod(o.method)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var (
		res       *engine.Result
		narrative string
	)
	if o.explain {
		res, narrative, err = svc.Explain(cmd.Context(), facts, method)
	} else {
		res, err = svc.Evaluate(cmd.Context(), facts, method)
	}
	if err != nil {
		return err
	}

	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if narrative != "" {
			return enc.Encode(map[string]any{"result": res, "explanation": narrative})
		}
		return enc.Encode(res)
	}
	repl.PrintReport(out, res, o.trace)
	if narrative != "" {
		fmt.Fprintf(out, "\n%s\n", narrative)
	}
	return nil
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		opts     reportOptions
		factFile string
	)
	cmd := &cobra.Command{
		Use:   "analyze [facts...]",
		Short: "Evaluate a set of observed facts",
		Long: `Evaluates facts given as arguments ("port_22_open password_auth_enabled"
or "port_22_open, password_auth_enabled.") or read from a file with one or
more comma separated facts per line. Lines starting with # are ignored.`,
		Example: `  vultester analyze port_23_open ssh_root_login_enabled
  vultester analyze --method mixed --json -f facts.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var facts []string
			if factFile != "" {
				fromFile, err := readFactsFile(factFile)
				if err != nil {
					return err
				}
				facts = append(facts, fromFile...)
			}
			if len(args) > 0 {
				fromArgs, err := parseFactArgs(args)
				if err != nil {
					return err
				}
				facts = append(facts, fromArgs...)
			}

			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return opts.run(cmd, svc, facts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVarP(&factFile, "file", "f", "", "read facts from a file")
	return cmd
}

func readFactsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fact file: %w", err)
	}
	defer f.Close()
	return readFacts(f)
}

func readFacts(r io.Reader) ([]string, error) {
	var facts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed, err := parseFactArgs([]string{line})
		if err != nil {
			return nil, err
		}
		facts = append(facts, parsed...)
	}
	return facts, scanner.Err()
}

// parseFactArgs parses each chunk on its own. A shell splits
// "a, b." into "a," and "b.", so a trailing comma ends the chunk rather
// than opening an empty fact.
func parseFactArgs(chunks []string) ([]string, error) {
	var facts []string
	for _, chunk := range chunks {
		chunk = strings.TrimRight(strings.TrimSpace(chunk), ",")
		if chunk == "" {
			continue
		}
		parsed, err := datalog.ParseFacts(chunk)
		if err != nil {
			return nil, err
		}
		facts = append(facts, parsed...)
	}
	return facts, nil
}

func newScanCmd(a *app) *cobra.Command {
	var (
		opts  reportOptions
		src   ingest.Sources
		ports string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Collect facts from configuration snapshots and evaluate them",
		Example: `  vultester scan --sshd /etc/ssh/sshd_config --sysctl /etc/sysctl.conf --sockets /proc/net/tcp
  vultester scan --ports 22,23,3306 --method mixed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ports != "" {
				parsed, err := ingest.ParsePorts(ports)
				if err != nil {
					return err
				}
				src.Ports = parsed
			}
			facts, err := ingest.NewCollector(a.logger).Collect(cmd.Context(), src)
			if err != nil {
				return err
			}
			if len(facts) == 0 {
				return fmt.Errorf("no facts collected; pass at least one of --sshd, --sysctl, --sockets, --ports")
			}
			if !opts.asJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "Collected %d fact(s): %s\n", len(facts), strings.Join(facts, ", "))
			}

			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return opts.run(cmd, svc, facts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&src.SSHDConfig, "sshd", "", "sshd_config to inspect")
	cmd.Flags().StringSliceVar(&src.Sysctl, "sysctl", nil, "sysctl.conf files, later files override earlier ones")
	cmd.Flags().StringSliceVar(&src.SocketTabs, "sockets", nil, "/proc/net/tcp style socket tables")
	cmd.Flags().StringVar(&ports, "ports", "", "open TCP ports, e.g. 22,80,443")
	return cmd
}
