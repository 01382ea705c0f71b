package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by the provider key.
const (
	ProviderFilesystem = "filesystem"
	ProviderGCS        = "gcs"
	ProviderBlob       = "blob"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Provider        string           `json:"provider" yaml:"provider"`
	LocalTempFolder string           `json:"localTempFolder" yaml:"localTempFolder"`
	Segment         SegmentConfig    `json:"segment" yaml:"segment"`
	Listing         ListingConfig    `json:"listing" yaml:"listing"`
	Consumer        ConsumerConfig   `json:"consumer" yaml:"consumer"`
	Filesystem      FilesystemConfig `json:"filesystem" yaml:"filesystem"`
	Blob            BlobConfig       `json:"blob" yaml:"blob"`
	GCS             GCSConfig        `json:"gcs" yaml:"gcs"`
}

// SegmentConfig holds the windowing policy and block settings.
type SegmentConfig struct {
	MaxSeconds     int64  `json:"maxSeconds" yaml:"maxSeconds"`
	MaxBytes       int64  `json:"maxBytes" yaml:"maxBytes"`
	SyncIntervalMs int64  `json:"syncIntervalMs" yaml:"syncIntervalMs"`
	BlockBytes     int    `json:"blockBytes" yaml:"blockBytes"`
	Compression    string `json:"compression" yaml:"compression"`
}

// ListingConfig bounds how often the backend is listed per topic.
type ListingConfig struct {
	MinIntervalSeconds int64 `json:"minIntervalSeconds" yaml:"minIntervalSeconds"`
}

// ConsumerConfig tunes tailing.
type ConsumerConfig struct {
	PollIntervalMs int64 `json:"pollIntervalMs" yaml:"pollIntervalMs"`
}

// FilesystemConfig configures the filesystem provider.
type FilesystemConfig struct {
	StorageFolder string `json:"storageFolder" yaml:"storageFolder"`
}

// BlobConfig configures the generic object-store provider.
type BlobConfig struct {
	BucketURL string `json:"bucketURL" yaml:"bucketURL"`
}

// GCSConfig configures the GCS provider.
type GCSConfig struct {
	BucketName string `json:"bucketName" yaml:"bucketName"`
	KeyFile    string `json:"keyFile" yaml:"keyFile"`
}

// Default returns built-in defaults.
func Default() Config {
	dataDir := DefaultDataDir()
	return Config{
		Provider:        ProviderFilesystem,
		LocalTempFolder: filepath.Join(dataDir, "tmp"),
		Segment: SegmentConfig{
			MaxSeconds:  60,
			MaxBytes:    64 << 20,
			BlockBytes:  64 << 10,
			Compression: "none",
		},
		Listing:    ListingConfig{MinIntervalSeconds: 1},
		Consumer:   ConsumerConfig{PollIntervalMs: 50},
		Filesystem: FilesystemConfig{StorageFolder: filepath.Join(dataDir, "store")},
	}
}

// MaxSegmentAge returns Segment.MaxSeconds as a duration.
func (c Config) MaxSegmentAge() time.Duration {
	return time.Duration(c.Segment.MaxSeconds) * time.Second
}

// SyncInterval returns Segment.SyncIntervalMs as a duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Segment.SyncIntervalMs) * time.Millisecond
}

// ListingInterval returns Listing.MinIntervalSeconds as a duration.
func (c Config) ListingInterval() time.Duration {
	return time.Duration(c.Listing.MinIntervalSeconds) * time.Second
}

// PollInterval returns Consumer.PollIntervalMs as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Consumer.PollIntervalMs) * time.Millisecond
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	if c.LocalTempFolder == "" {
		return errors.New("config: local-temp-folder is required")
	}
	if c.Segment.MaxSeconds < 0 || c.Segment.MaxBytes < 0 || c.Segment.SyncIntervalMs < 0 || c.Segment.BlockBytes < 0 {
		return errors.New("config: segment limits must not be negative")
	}
	if c.Listing.MinIntervalSeconds < 0 || c.Consumer.PollIntervalMs < 0 {
		return errors.New("config: intervals must not be negative")
	}
	switch c.Segment.Compression {
	case "", "none", "zstd", "s2":
	default:
		return fmt.Errorf("config: unknown segment.compression %q", c.Segment.Compression)
	}
	switch c.Provider {
	case ProviderFilesystem:
		if c.Filesystem.StorageFolder == "" {
			return errors.New("config: filesystem.storage-folder is required")
		}
	case ProviderGCS:
		if c.GCS.BucketName == "" {
			return errors.New("config: gcs.bucket-name is required")
		}
	case ProviderBlob:
		if c.Blob.BucketURL == "" {
			return errors.New("config: blob.bucket-url is required")
		}
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
