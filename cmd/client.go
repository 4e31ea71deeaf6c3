package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"localshare/client"
	"localshare/core"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newWatchCommand(ctx context.Context, opts *rootOptions) *cobra.Command {
	var reconnect time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror the host's item list and log every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client.New(opts.server)
			if err != nil {
				return err
			}

			view := client.NewView()
			view.OnChange = func(items []core.Item) {
				logrus.WithField("items", len(items)).Info("Shared items changed")
				for _, item := range items {
					fmt.Fprintln(cmd.OutOrStdout(), describe(item))
				}
			}

			settings := client.DefaultAgentSettings()
			settings.ReconnectTimeout = reconnect
			err = client.NewAgent(c, view, settings).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&reconnect, "reconnect", 2*time.Second, "Minimum delay between connection attempts")
	return cmd
}

func newSendCommand(ctx context.Context, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send TEXT...",
		Short: "Share a text snippet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(opts.server)
			if err != nil {
				return err
			}
			item, err := c.SendText(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return nil
		},
	}
}

func newUploadCommand(ctx context.Context, fs afero.Fs, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(opts.server, client.WithFs(fs))
			if err != nil {
				return err
			}
			resp, err := c.Upload(ctx, args...)
			out := cmd.OutOrStdout()
			for _, item := range resp.Items {
				fmt.Fprintln(out, describe(item))
			}
			for _, fe := range resp.Errors {
				fmt.Fprintf(out, "failed %s: %s\n", fe.Filename, fe.Message)
			}
			return err
		},
	}
}

func newDownloadCommand(ctx context.Context, fs afero.Fs, opts *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download NAME",
		Short: "Download a shared file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(opts.server, client.WithFs(fs))
			if err != nil {
				return err
			}
			path, err := c.Download(ctx, args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "output", "o", ".", "Directory to save into")
	return cmd
}

func describe(item core.Item) string {
	switch item.Kind {
	case core.KindFile:
		return fmt.Sprintf("%s\tfile\t%s (%s)", item.ID, item.Filename, humanize.Bytes(uint64(item.Size)))
	default:
		return fmt.Sprintf("%s\ttext\t%s", item.ID, item.Content)
	}
}
