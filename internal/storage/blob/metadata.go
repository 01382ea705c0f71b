package blobstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rzbill/rawdata/internal/storage"
	"gocloud.dev/blob"
)

// Metadata implements storage.Backend. Values live one per object under
// {topic}/metadata/, named by the base64url form of the key so that keys
// containing "/" or ".." stay a single path element.
func (b *Backend) Metadata(ctx context.Context, topic string) (storage.MetadataStore, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	return &metadataStore{b: b, topic: topic, prefix: b.topicPrefix(topic) + storage.MetadataDir + "/"}, nil
}

type metadataStore struct {
	b      *Backend
	topic  string
	prefix string
}

func (m *metadataStore) object(key string) string {
	return m.prefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (m *metadataStore) Topic() string { return m.topic }

func (m *metadataStore) Put(ctx context.Context, key string, value []byte) error {
	if err := m.b.bucket.WriteAll(ctx, m.object(key), value, nil); err != nil {
		return fmt.Errorf("blobstore: put metadata %s: %w", m.topic, err)
	}
	return nil
}

func (m *metadataStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := m.b.bucket.ReadAll(ctx, m.object(key))
	if err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blobstore: get metadata %s: %w", m.topic, err)
	}
	return v, true, nil
}

func (m *metadataStore) Remove(ctx context.Context, key string) error {
	if err := m.b.bucket.Delete(ctx, m.object(key)); err != nil && !notFound(err) {
		return fmt.Errorf("blobstore: remove metadata %s: %w", m.topic, err)
	}
	return nil
}

func (m *metadataStore) Keys(ctx context.Context) ([]string, error) {
	it := m.b.bucket.List(&blob.ListOptions{Prefix: m.prefix, Delimiter: "/"})
	var keys []string
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blobstore: list metadata %s: %w", m.topic, err)
		}
		if obj.IsDir {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(obj.Key, m.prefix))
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}
