package storage

import (
	"context"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/blackroad/metricboard/pkg/types"
)

// Backup implements Store.Backup. The badger backup stream is piped
// through a zstd writer; restore with RestoreStore.
func (s *badgerStore) Backup(ctx context.Context, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return types.NewStorageError("backup", err)
	}

	if _, err := s.db.Backup(zw, 0); err != nil {
		zw.Close()
		return types.NewStorageError("backup", err)
	}
	if err := zw.Close(); err != nil {
		return types.NewStorageError("backup", err)
	}
	return nil
}

// RestoreStore loads a zstd-compressed backup stream into a fresh store
// at cfg.Path. The target store must not contain conflicting data.
func RestoreStore(cfg *Config, r io.Reader) (Store, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		store.Close()
		return nil, types.NewStorageError("restore", err)
	}
	defer zr.Close()

	bs := store.(*badgerStore)
	if err := bs.db.Load(zr, 16); err != nil {
		store.Close()
		return nil, types.NewStorageError("restore", err)
	}
	return store, nil
}
