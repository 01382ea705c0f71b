// Package config resolves client configuration from a closed set of named
// keys. Default() is the baseline; Load reads a JSON or YAML file, FromEnv
// overlays RAWDATA_* variables and FromMap applies key/value pairs using the
// dotted key names (segment.max-seconds, listing.min-interval-seconds, ...).
//
// Example:
//
//	cfg, err := config.Load("/etc/rawdata.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
package config
