package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/blob"
	"github.com/nhle/mailsync/internal/model"
)

func newRawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Inspect retained raw messages",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [mailbox]",
		Short: "List retained raw message keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := openBlobs(cmd.Context(), optionsFrom(cmd).cfg)
			if err != nil {
				return err
			}

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			keys, err := blobs.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderKeys(keys))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Print a retained raw message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := openBlobs(cmd.Context(), optionsFrom(cmd).cfg)
			if err != nil {
				return err
			}

			raw, err := blobs.Read(cmd.Context(), args[0])
			if errors.Is(err, blob.ErrNotFound) {
				return fmt.Errorf("no raw message under %s", args[0])
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	})

	return cmd
}

func openBlobs(ctx context.Context, cfg *model.AppConfig) (blob.Store, error) {
	blobs, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		return nil, err
	}
	if blobs == nil {
		return nil, errors.New("raw message retention is disabled")
	}
	return blobs, nil
}

func renderKeys(keys []string) string {
	if len(keys) == 0 {
		return "No raw messages retained.\n"
	}
	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('\n')
	}
	return b.String()
}
