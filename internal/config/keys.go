package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrUnknownKey is returned by FromMap for keys outside the closed set.
var ErrUnknownKey = errors.New("config: unknown key")

type setter func(cfg *Config, v string) error

func str(field func(*Config) *string) setter {
	return func(cfg *Config, v string) error { *field(cfg) = v; return nil }
}

func i64(field func(*Config) *int64) setter {
	return func(cfg *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

// keys is the closed set of configuration keys.
var keys = map[string]setter{
	"provider":                     str(func(c *Config) *string { return &c.Provider }),
	"local-temp-folder":            str(func(c *Config) *string { return &c.LocalTempFolder }),
	"segment.max-seconds":          i64(func(c *Config) *int64 { return &c.Segment.MaxSeconds }),
	"segment.max-bytes":            i64(func(c *Config) *int64 { return &c.Segment.MaxBytes }),
	"segment.sync-interval-ms":     i64(func(c *Config) *int64 { return &c.Segment.SyncIntervalMs }),
	"segment.compression":          str(func(c *Config) *string { return &c.Segment.Compression }),
	"listing.min-interval-seconds": i64(func(c *Config) *int64 { return &c.Listing.MinIntervalSeconds }),
	"consumer.poll-interval-ms":    i64(func(c *Config) *int64 { return &c.Consumer.PollIntervalMs }),
	"filesystem.storage-folder":    str(func(c *Config) *string { return &c.Filesystem.StorageFolder }),
	"blob.bucket-url":              str(func(c *Config) *string { return &c.Blob.BucketURL }),
	"gcs.bucket-name":              str(func(c *Config) *string { return &c.GCS.BucketName }),
	"gcs.service-account.key-file": str(func(c *Config) *string { return &c.GCS.KeyFile }),
	"segment.block-bytes": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Segment.BlockBytes = n
		return nil
	},
}

// Keys returns the sorted closed key set.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Set applies one key to cfg.
func Set(cfg *Config, key, value string) error {
	set, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err := set(cfg, value); err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	return nil
}

// FromMap overlays m onto the defaults.
func FromMap(m map[string]string) (Config, error) {
	cfg := Default()
	for k, v := range m {
		if err := Set(&cfg, k, v); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
