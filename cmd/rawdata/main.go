package main

import (
	"context"
	"fmt"
	"os"

	clientcmd "github.com/rzbill/rawdata/internal/cmd/client"
	serverrun "github.com/rzbill/rawdata/internal/cmd/server"
	cfgpkg "github.com/rzbill/rawdata/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "rawdata",
		Short:         "Segmented append-only message log",
		Long:          "rawdata stores topics as segment files on a filesystem or in a bucket. This binary runs the HTTP server and talks to it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serverCmd(), configKeysCmd())
	clientcmd.AddCommands(root, apiURL)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "rawdata:", err)
		os.Exit(1)
	}
}

func serverCmd() *cobra.Command {
	var (
		opts      serverrun.Options
		logLevel  string
		logFormat string
	)
	start := &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP server until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// serverrun reads these when it builds the process logger
			if logLevel != "" {
				os.Setenv("RAWDATA_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				os.Setenv("RAWDATA_LOG_FORMAT", logFormat)
			}
			return serverrun.Run(cmd.Context(), opts)
		},
	}
	f := start.Flags()
	f.StringVar(&opts.ConfigPath, "config", os.Getenv("RAWDATA_CONFIG"), "config file, JSON or YAML")
	f.StringVar(&opts.DataDir, "data-dir", "", "root for the filesystem store and temp folder, overrides the config")
	f.StringVar(&opts.HTTPAddr, "http", ":8080", "HTTP listen address")
	f.BoolVar(&opts.DisableMetrics, "no-metrics", false, "do not serve /metrics")
	f.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&logFormat, "log-format", "", "text or json")

	cmd := &cobra.Command{Use: "server", Short: "Server commands"}
	cmd.AddCommand(start)
	return cmd
}

func configKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-keys",
		Short: "List configuration keys with their environment variables",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, k := range cfgpkg.Keys() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s %s\n", k, cfgpkg.EnvName(k))
			}
		},
	}
}

func apiURL() string {
	if v := os.Getenv("RAWDATA_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
