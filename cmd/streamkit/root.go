package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	logLevel  string
	logFormat string
	logger    *slog.Logger
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Scheduled batch polling consumers with stream caching",
		Long: `streamkit runs scheduled polling consumers over in-memory tables, Pebble
stores and NATS JetStream streams. Message bodies can be stream cached and
spooled to disk, optionally encrypted, once they exceed a threshold.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = setupLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			slog.SetDefault(opts.logger)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level",
		getEnv("STREAMKIT_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: STREAMKIT_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format",
		getEnv("STREAMKIT_LOG_FORMAT", "json"),
		"Log format: json, text (env: STREAMKIT_LOG_FORMAT)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newSpoolCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
