package cmd

import (
	"context"
	"time"

	"localshare/config"
	"localshare/server"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	listen      string
	storagePath string
	storageType string
}

func newServeCommand(ctx context.Context) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the share host",
		Long: `Run the share host until interrupted.

Configuration comes from the environment or a .env file in the working
directory; flags override both. On shutdown every shared item is removed and
the storage directory is emptied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if f := cmd.Flag("loglevel"); f == nil || !f.Changed {
				if err := setupLogging(cfg.LogLevel); err != nil {
					return err
				}
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", ":3000", "Set the server listen address")
	cmd.Flags().StringVar(&opts.storagePath, "storage-path", "./uploads", "Directory holding uploaded files")
	cmd.Flags().StringVar(&opts.storageType, "storage-type", "filesystem", "Storage backend: filesystem or memory")
	return cmd
}

func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = o.listen
	}
	if cmd.Flags().Changed("storage-path") {
		cfg.StoragePath = o.storagePath
	}
	if cmd.Flags().Changed("storage-type") {
		cfg.StorageType = o.storageType
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	if _, err := srv.Start(); err != nil {
		return err
	}
	logrus.Debug("Server is running in the background")

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-srv.Failed():
	}

	logrus.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Shutdown finished with errors")
	}
	return serveErr
}
