package client

import (
	"context"
	"os"

	transports "github.com/rzbill/rawdata/internal/cmd/client/transports"
	cfgpkg "github.com/rzbill/rawdata/internal/config"
	"github.com/rzbill/rawdata/internal/runtime"
	logpkg "github.com/rzbill/rawdata/pkg/log"
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command for the rawdata client.
// It registers the topic and metadata command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "rawdata",
		Short: "rawdata client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers the client commands and their persistent flags on
// root.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc) {
	root.PersistentFlags().String("server", "", "Server base URL (default $RAWDATA_HTTP or http://127.0.0.1:8080)")
	root.PersistentFlags().Bool("local", false, "Open the configured storage directly instead of calling a server")
	root.PersistentFlags().String("config", os.Getenv("RAWDATA_CONFIG"), "Config file for --local (JSON or YAML)")

	open := func(cmd *cobra.Command) (transports.Transport, error) {
		return transportFor(cmd, baseURL)
	}
	root.AddCommand(
		newPublishCommand(open),
		newTailCommand(open),
		newLastCommand(open),
		newCursorCommand(open),
		newMetaCommand(open),
	)
}

type openFunc func(cmd *cobra.Command) (transports.Transport, error)

// transportFor picks the HTTP transport unless --local is set.
func transportFor(cmd *cobra.Command, baseURL BaseURLFunc) (transports.Transport, error) {
	local, _ := cmd.Flags().GetBool("local")
	if !local {
		server, _ := cmd.Flags().GetString("server")
		if server == "" {
			server = baseURL()
		}
		return transports.NewHTTPTransport(server, nil), nil
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return nil, err
	}
	cfgpkg.FromEnv(&cfg)
	logger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  getenvDefault("RAWDATA_LOG_LEVEL", "warn"),
		Format: getenvDefault("RAWDATA_LOG_FORMAT", "text"),
	})
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, err
	}
	return transports.NewLocalTransport(rt), nil
}

// withTransport opens a transport for the command and closes it afterwards.
func withTransport(cmd *cobra.Command, open openFunc, fn func(transports.Transport) error) error {
	t, err := open(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ferr := fn(t)
	if cerr := t.Close(ctx); ferr == nil {
		ferr = cerr
	}
	return ferr
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
