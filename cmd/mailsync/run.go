package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/api"
)

func newRunCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll every configured mailbox and serve the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := optionsFrom(cmd)
			if listen != "" {
				o.cfg.Listen = listen
			}
			return runDaemon(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address of the admin API (overrides the configuration)")
	return cmd
}

func runDaemon(ctx context.Context, o *options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	poller := a.poller()
	poller.Start(ctx)
	defer poller.Stop()

	srv := &http.Server{
		Addr:              o.cfg.Listen,
		Handler:           api.NewRouter(api.Config{Store: a.store, Syncer: poller, Blobs: a.blobs}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"listen":    o.cfg.Listen,
			"mailboxes": len(o.cfg.Mailboxes),
		}).Info("mailsync running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logrus.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
