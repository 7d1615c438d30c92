package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/mailsync/internal/blob"
	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/notify"
	"github.com/nhle/mailsync/internal/provider"
	"github.com/nhle/mailsync/internal/provider/generic"
	"github.com/nhle/mailsync/internal/provider/gmail"
	"github.com/nhle/mailsync/internal/receiver"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/internal/sync"
)

// app holds the components shared by the run and sync commands.
type app struct {
	cfg       *model.AppConfig
	store     *store.SQLiteStore
	blobs     blob.Store
	publisher *notify.Publisher
	engine    *sync.Engine
}

// openStore opens the database and registers the configured mailboxes.
func openStore(ctx context.Context, cfg *model.AppConfig) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	for _, mc := range cfg.Mailboxes {
		if err := st.UpsertMailbox(ctx, mc.Mailbox()); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

func newApp(ctx context.Context, cfg *model.AppConfig) (*app, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	creds, err := credential.Open()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	publisher, err := notify.New(cfg.NATS)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if publisher != nil {
		if err := publisher.EnsureStream(ctx); err != nil {
			publisher.Close()
			_ = st.Close()
			return nil, err
		}
	}

	engine := sync.NewEngine(st, receiver.New(st, blobs), providerFactory(ctx, cfg, creds), sync.Config{
		ReadOnly:       cfg.ReadOnly,
		TaggingEnabled: cfg.TaggingEnabled,
	})

	return &app{cfg: cfg, store: st, blobs: blobs, publisher: publisher, engine: engine}, nil
}

// poller builds a poller over the configured mailboxes.
func (a *app) poller() *sync.Poller {
	schedules := make([]sync.Schedule, 0, len(a.cfg.Mailboxes))
	for _, mc := range a.cfg.Mailboxes {
		seconds := a.cfg.PollIntervalSec
		if mc.PollIntervalSec > 0 {
			seconds = mc.PollIntervalSec
		}
		schedules = append(schedules, sync.Schedule{
			MailboxID: mc.ID,
			Interval:  time.Duration(seconds) * time.Second,
		})
	}

	var pub sync.Publisher
	if a.publisher != nil {
		pub = a.publisher
	}
	return sync.NewPoller(a.engine, a.store, pub, schedules, a.cfg.Concurrency)
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	_ = a.store.Close()
}

// providerFactory builds the provider for a mailbox, reading its secrets
// from the keyring.
func providerFactory(ctx context.Context, cfg *model.AppConfig, creds *credential.Store) provider.Factory {
	return func(mb model.Mailbox) (provider.Provider, error) {
		password, err := creds.Password(mb.ID)
		if err != nil {
			return nil, fmt.Errorf("password of %s: %w", mb.ID, err)
		}

		switch mb.Provider {
		case model.ProviderGmail:
			mc, ok := cfg.FindMailbox(mb.ID)
			if !ok {
				return nil, fmt.Errorf("mailbox %s is not configured", mb.ID)
			}
			token, err := creds.RefreshToken(mb.ID)
			if err != nil {
				return nil, fmt.Errorf("refresh token of %s: %w", mb.ID, err)
			}
			p, err := gmail.New(ctx, mb, password, mc.Gmail, token)
			if err != nil {
				return nil, err
			}
			return p, nil
		case model.ProviderGeneric, "":
			return generic.New(mb, password), nil
		}
		return nil, fmt.Errorf("unknown provider %q for %s", mb.Provider, mb.ID)
	}
}
