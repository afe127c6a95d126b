package history

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"
)

// DefaultRetention is the number of runs kept when nothing else is configured.
const DefaultRetention = 1000

// Config holds the configuration for the run store.
type Config struct {
	// DataDir is where BadgerDB keeps its files. Ignored when InMemory is set.
	DataDir string

	// InMemory keeps everything in RAM (useful for testing).
	InMemory bool

	// Retention is the number of most recent runs kept. 0 keeps everything.
	Retention int

	// Compression enables ZSTD block compression on disk.
	Compression bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// ReadOnly opens an existing store without write access.
	ReadOnly bool
}

// DefaultConfig returns the settings for a store under dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:     dataDir,
		Retention:   DefaultRetention,
		Compression: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DataDir == "" && !c.InMemory {
		return fmt.Errorf("DataDir must be specified when InMemory is false")
	}
	if c.Retention < 0 {
		return fmt.Errorf("Retention must be non-negative, got %d", c.Retention)
	}
	if c.InMemory && c.ReadOnly {
		return fmt.Errorf("an in-memory store cannot be read-only")
	}
	return nil
}

// badgerOptions converts Config to badger.Options.
func (c Config) badgerOptions(logger *zap.Logger) badger.Options {
	var opts badger.Options
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(c.DataDir, "badger"))
		opts.ReadOnly = c.ReadOnly
	}

	opts.SyncWrites = c.SyncWrites
	// Runs are written once and never updated concurrently.
	opts.DetectConflicts = false
	// A run history is small; keep the footprint modest.
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.BlockCacheSize = 32 << 20
	opts.IndexCacheSize = 16 << 20

	if c.Compression {
		opts.Compression = options.ZSTD
	} else {
		opts.Compression = options.None
	}

	opts.Logger = badgerLogger{logger.Sugar()}
	return opts
}

// badgerLogger routes badger's own logging through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
