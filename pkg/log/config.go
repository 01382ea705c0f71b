package log

import (
	"fmt"
	"strings"
)

// Config declares a logger.
type Config struct {
	Level      string         `json:"level" yaml:"level"`
	Format     string         `json:"format" yaml:"format"`
	Outputs    []OutputConfig `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	ShowCaller bool           `json:"showCaller,omitempty" yaml:"showCaller,omitempty"`
	RedactKeys []string       `json:"redactKeys,omitempty" yaml:"redactKeys,omitempty"`
	Sampling   *Sampling      `json:"sampling,omitempty" yaml:"sampling,omitempty"`
}

// OutputConfig selects one output: console, file or null.
type OutputConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Sampling keeps the first Initial entries per message and then every
// Thereafter-th.
type Sampling struct {
	Initial    int `json:"initial" yaml:"initial"`
	Thereafter int `json:"thereafter" yaml:"thereafter"`
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{ShowCaller: cfg.ShowCaller}
	case "json":
		formatter = &JSONFormatter{ShowCaller: cfg.ShowCaller}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}
	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, fmt.Errorf("log: open %s: %w", oc.Path, err)
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			return nil, fmt.Errorf("log: unknown output %q", oc.Type)
		}
	}
	l := NewLogger(opts...).(*BaseLogger)
	if len(cfg.RedactKeys) > 0 {
		l.handler.redact = make(map[string]struct{}, len(cfg.RedactKeys))
		for _, k := range cfg.RedactKeys {
			l.handler.redact[k] = struct{}{}
		}
	}
	if cfg.Sampling != nil && cfg.Sampling.Thereafter > 0 {
		l.handler.sample = newSampler(cfg.Sampling.Initial, cfg.Sampling.Thereafter)
	}
	return l, nil
}
