package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rzbill/rawdata/internal/storage"
	pebblestore "github.com/rzbill/rawdata/internal/storage/pebble"
)

// Metadata implements storage.Backend. Each topic gets a Pebble database at
// {Root}/{topic}/metadata, opened on first use and kept until Close.
func (b *Backend) Metadata(ctx context.Context, topic string) (storage.MetadataStore, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, os.ErrClosed
	}
	if m, ok := b.meta[topic]; ok {
		return m, nil
	}
	dir := filepath.Join(b.topicDir(topic), storage.MetadataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: mkdir %s: %w", dir, err)
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: dir,
		Fsync:   b.opts.MetadataFsync,
		Metrics: b.opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("fsstore: open metadata %s: %w", topic, err)
	}
	m := &metadataStore{topic: topic, db: db}
	b.meta[topic] = m
	return m, nil
}

type metadataStore struct {
	topic string
	db    *pebblestore.DB
}

func (m *metadataStore) Topic() string { return m.topic }

func (m *metadataStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.Set([]byte(key), value)
}

func (m *metadataStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, err := m.db.Get([]byte(key))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (m *metadataStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.Delete([]byte(key))
}

func (m *metadataStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := m.db.Keys(nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, k := range raw {
		out[i] = string(k)
	}
	return out, nil
}
