package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"localshare/cmd"

	"github.com/spf13/afero"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := cmd.NewRootCommand(ctx, afero.NewOsFs()).Execute(); err != nil {
		stop()
		os.Exit(1)
	}
}
