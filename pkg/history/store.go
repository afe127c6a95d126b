// Package history persists finished runs in BadgerDB so reports can be
// fetched again by run id.
package history

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/duynguyendang/vultester/internal/logging"
	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/klauspost/compress/s2"
	"go.uber.org/zap"
)

// Record is one stored run: the facts as submitted and the report.
type Record struct {
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	Facts     []string       `json:"facts"`
	Result    *engine.Result `json:"result"`
}

// Summary is the listing form of a Record.
type Summary struct {
	RunID      string        `json:"run_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Method     engine.Method `json:"method"`
	Status     engine.Status `json:"overall_status"`
	Facts      int           `json:"facts"`
	RulesFired int           `json:"total_rules_fired"`
}

func (r Record) summary() Summary {
	s := Summary{RunID: r.RunID, CreatedAt: r.CreatedAt, Facts: len(r.Facts)}
	if r.Result != nil {
		s.Method = r.Result.Method
		s.Status = r.Result.OverallStatus
		s.RulesFired = r.Result.TotalRulesFired
	}
	return s
}

// Store is a BadgerDB backed run history. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger *zap.Logger
}

// Open opens or creates the store. logger may be nil.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = logging.OrNop(logger).Named("history")
	logger.Info("opening run history",
		zap.String("dataDir", cfg.DataDir),
		zap.Bool("inMemory", cfg.InMemory),
		zap.Int("retention", cfg.Retention))

	db, err := badger.Open(cfg.badgerOptions(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores rec and then drops the oldest runs beyond the retention limit.
// CreatedAt defaults to now.
func (s *Store) Save(rec Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("%w: record has no run id", errors.ErrInvalidInput)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	runKey := encodeRunKey(rec.CreatedAt, rec.RunID)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey, s2.Encode(nil, data)); err != nil {
			return err
		}
		return txn.Set(encodeIndexKey(rec.RunID), runKey)
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}

	if s.cfg.Retention > 0 {
		return s.prune(s.cfg.Retention)
	}
	return nil
}

// Get returns the run with runID. A miss wraps errors.ErrNotFound.
func (s *Store) Get(runID string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeIndexKey(runID))
		if err != nil {
			return err
		}
		runKey, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if item, err = txn.Get(runKey); err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decode(val, &rec)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: run %q", errors.ErrNotFound, runID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return rec, nil
}

// List returns up to limit runs, newest first. limit <= 0 lists everything.
func (s *Store) List(limit int) ([]Summary, error) {
	out := []Summary{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte{RunPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must start past the last key of the prefix.
		for it.Seek([]byte{RunPrefix, 0xFF}); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return decode(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec.summary())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return out, nil
}

// Count returns the number of stored runs.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{IndexPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// prune deletes the oldest runs so that at most keep remain.
func (s *Store) prune(keep int) error {
	total, err := s.Count()
	if err != nil || total <= keep {
		return err
	}

	var stale [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{RunPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(stale) < total-keep; it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			wb.Cancel()
			return err
		}
		if err := wb.Delete(encodeIndexKey(runIDFromKey(key))); err != nil {
			wb.Cancel()
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	s.logger.Debug("pruned run history", zap.Int("removed", len(stale)), zap.Int("kept", keep))
	return nil
}

func decode(val []byte, rec *Record) error {
	data, err := s2.Decode(nil, val)
	if err != nil {
		return fmt.Errorf("failed to decompress run: %w", err)
	}
	return json.Unmarshal(data, rec)
}
