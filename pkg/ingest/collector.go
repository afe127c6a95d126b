package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/duynguyendang/vultester/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxWorkers bounds concurrent file reads.
const MaxWorkers = 8

// Sources names the snapshots to collect facts from. Empty fields are skipped.
type Sources struct {
	SSHDConfig string   // path to sshd_config
	Sysctl     []string // sysctl.conf style files, applied in order
	SocketTabs []string // /proc/net/tcp style socket tables
	Ports      []int    // ports known to be open
}

// Collector turns configuration snapshots into initial facts.
type Collector struct {
	logger *zap.Logger
}

// NewCollector creates a collector. logger may be nil.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logging.OrNop(logger)}
}

// Collect reads every source and returns the facts in a fixed order: sshd,
// sysctl, socket tables, explicit ports. Files are read concurrently.
func (c *Collector) Collect(ctx context.Context, src Sources) ([]string, error) {
	var paths []string
	if src.SSHDConfig != "" {
		paths = append(paths, src.SSHDConfig)
	}
	paths = append(paths, src.Sysctl...)
	paths = append(paths, src.SocketTabs...)

	contents := make([][]byte, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxWorkers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := newFactList()
	next := 0

	if src.SSHDConfig != "" {
		facts, err := SSHDConfig(bytes.NewReader(contents[next]))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.SSHDConfig, err)
		}
		c.logger.Debug("collected sshd facts", zap.String("path", src.SSHDConfig), zap.Strings("facts", facts))
		out.add(facts...)
		next++
	}

	if len(src.Sysctl) > 0 {
		// Files are concatenated so later files override earlier ones.
		joined := bytes.Join(contents[next:next+len(src.Sysctl)], []byte("\n"))
		facts, err := Sysctl(bytes.NewReader(joined))
		if err != nil {
			return nil, err
		}
		c.logger.Debug("collected sysctl facts", zap.Strings("files", src.Sysctl), zap.Strings("facts", facts))
		out.add(facts...)
		next += len(src.Sysctl)
	}

	for _, path := range src.SocketTabs {
		ports, err := ListeningPorts(bytes.NewReader(contents[next]))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		facts, err := Ports(ports)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("collected listening ports", zap.String("path", path), zap.Ints("ports", ports))
		out.add(facts...)
		next++
	}

	facts, err := Ports(src.Ports)
	if err != nil {
		return nil, err
	}
	out.add(facts...)

	c.logger.Info("fact collection finished", zap.Int("sources", len(paths)), zap.Int("facts", len(out.facts)))
	return out.facts, nil
}
