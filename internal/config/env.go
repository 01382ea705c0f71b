package config

import (
	"os"
	"strings"
)

// EnvName maps a configuration key to its RAWDATA_* variable.
func EnvName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return "RAWDATA_" + strings.ToUpper(r.Replace(key))
}

// FromEnv overlays RAWDATA_* environment variables onto cfg. Values that fail
// to parse are ignored.
func FromEnv(cfg *Config) {
	for _, k := range Keys() {
		if v := os.Getenv(EnvName(k)); v != "" {
			_ = Set(cfg, k, v)
		}
	}
}
