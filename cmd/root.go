package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const defaultServer = "http://127.0.0.1:3000"

type rootOptions struct {
	logLevel string
	server   string
}

// NewRootCommand returns the localshare command tree. Without a subcommand it
// runs the host, like "localshare serve".
func NewRootCommand(ctx context.Context, fs afero.Fs) *cobra.Command {
	cobra.EnableCommandSorting = false
	opts := &rootOptions{}

	serveCmd := newServeCommand(ctx)
	rootCmd := &cobra.Command{
		Use:   "localshare",
		Short: "Share files and text with devices on the local network.",
		Long: `localshare runs a small HTTP host that devices on the same network use to
exchange files and text snippets. Every connected device sees additions and
clears in real time. Nothing survives a restart.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(opts.logLevel)
		},
		RunE: serveCmd.RunE,
	}
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "loglevel", "info",
		"Set the logging level: debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", serverFromEnv(),
		"Host URL used by the client commands (env LOCALSHARE_SERVER)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newWatchCommand(ctx, opts))
	rootCmd.AddCommand(newSendCommand(ctx, opts))
	rootCmd.AddCommand(newUploadCommand(ctx, fs, opts))
	rootCmd.AddCommand(newDownloadCommand(ctx, fs, opts))
	return rootCmd
}

func serverFromEnv() string {
	if s := os.Getenv("LOCALSHARE_SERVER"); s != "" {
		return s
	}
	return defaultServer
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
