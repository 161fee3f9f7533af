package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/blackroad/metricboard/pkg/types"
)

// Store defines the contract for append-only point storage
type Store interface {
	// Write durably persists a point; it is visible to all subsequent reads
	Write(ctx context.Context, p types.Point) error

	// Read returns the points of a metric inside the range that match the
	// label filter, ascending by timestamp with ties in insertion order.
	// No matching points is an empty result, never an error.
	Read(ctx context.Context, metric string, r types.TimeRange, filter map[string]string) ([]types.Point, error)

	// Latest returns the most recently timestamped matching point,
	// or nil when the metric has no matching points
	Latest(ctx context.Context, metric string, filter map[string]string) (*types.Point, error)

	// Backup streams a compressed snapshot of the store to w
	Backup(ctx context.Context, w io.Writer) error

	// Close closes the store
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path       string
	SyncWrites bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:       "./data",
		SyncWrites: true,
	}
}

// badgerStore implements Store using BadgerDB. Points are keyed by
// (metric hash, timestamp, insertion sequence) so that a prefix scan
// yields chronological order regardless of write order; backfilled
// out-of-order points are accepted without bound.
type badgerStore struct {
	cfg *Config
	db  *badger.DB
	seq *badger.Sequence
	mu  sync.RWMutex
}

// NewStore opens a badger-backed store at cfg.Path
func NewStore(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "points"))
	opts.Logger = nil // Disable BadgerDB logging
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, types.NewStorageError("open", err)
	}

	// The insertion sequence survives restarts, so tie-break order
	// between runs stays stable.
	seq, err := db.GetSequence([]byte("!seq"), 128)
	if err != nil {
		db.Close()
		return nil, types.NewStorageError("open sequence", err)
	}

	return &badgerStore{cfg: cfg, db: db, seq: seq}, nil
}

// Write implements Store.Write
func (s *badgerStore) Write(ctx context.Context, p types.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.seq.Next()
	if err != nil {
		return types.NewStorageError("sequence", err)
	}

	key := pointKey(p.Metric, p.Timestamp, n)
	payload, err := encodePoint(p)
	if err != nil {
		return types.NewStorageError("encode", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return types.NewStorageError("write", err)
	}
	return nil
}

// Read implements Store.Read
func (s *badgerStore) Read(ctx context.Context, metric string, r types.TimeRange, filter map[string]string) ([]types.Point, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Point
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metricPrefix(metric)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Key order inside the prefix is (timestamp, sequence), so the
		// scan is already chronological with stable insertion-order ties.
		for it.Seek(seekKey(metric, r.From)); it.Valid(); it.Next() {
			if ts := keyTimestamp(it.Item().Key()); ts > r.To {
				break
			}

			var p types.Point
			err := it.Item().Value(func(val []byte) error {
				var derr error
				p, derr = decodePoint(val)
				return derr
			})
			if err != nil {
				return fmt.Errorf("record at key %x: %w", it.Item().Key(), err)
			}

			// Hash collision guard: distinct metric names can share a prefix.
			if p.Metric != metric {
				continue
			}
			if !matchLabels(p.Labels, filter) {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, types.NewStorageError("read", err)
	}
	return out, nil
}

// Latest implements Store.Latest
func (s *badgerStore) Latest(ctx context.Context, metric string, filter map[string]string) (*types.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *types.Point
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metricPrefix(metric)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekKeyMax(metric)); it.Valid(); it.Next() {
			var p types.Point
			err := it.Item().Value(func(val []byte) error {
				var derr error
				p, derr = decodePoint(val)
				return derr
			})
			if err != nil {
				return fmt.Errorf("record at key %x: %w", it.Item().Key(), err)
			}
			if p.Metric != metric || !matchLabels(p.Labels, filter) {
				continue
			}
			latest = &p
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, types.NewStorageError("read latest", err)
	}
	return latest, nil
}

// Close implements Store.Close
func (s *badgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			s.db.Close()
			return types.NewStorageError("release sequence", err)
		}
	}
	if err := s.db.Close(); err != nil {
		return types.NewStorageError("close", err)
	}
	return nil
}

// matchLabels reports whether labels satisfy the subset filter.
// A point with no labels matches only an empty filter.
func matchLabels(labels, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := labels[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
