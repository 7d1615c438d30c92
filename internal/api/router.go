// Package api provides the HTTP admin interface: mailbox status, manual
// sync triggers and local topic edits.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/sync"
)

// Store is the persistence the API reads and edits.
type Store interface {
	Ping(ctx context.Context) error
	ListMailboxes(ctx context.Context) ([]model.Mailbox, error)
	GetTopic(ctx context.Context, id string) (*model.Topic, error)
	GetPosts(ctx context.Context, topicID string) ([]model.Post, error)
	SetTopicArchived(ctx context.Context, id string, archived, local bool) error
	SetTopicTags(ctx context.Context, topicID string, names []string, local bool) error
	FindIncomingByPost(ctx context.Context, topicID string, postNumber int) (*model.IncomingMessage, error)
}

// Blobs reads retained raw messages. blob.Store satisfies it.
type Blobs interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Syncer triggers passes and reports their status. *sync.Poller
// satisfies it.
type Syncer interface {
	Trigger(mailboxID string) error
	Statuses() []sync.SyncStatus
}

// Config holds dependencies for the API.
type Config struct {
	Store  Store
	Syncer Syncer
	// Blobs is nil when raw retention is disabled.
	Blobs Blobs
}

// NewRouter creates the chi router with all routes.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth(cfg.Store))

	r.Get("/mailboxes", handleListMailboxes(cfg.Store, cfg.Syncer))
	r.Post("/mailboxes/{id}/sync", handleTriggerSync(cfg.Syncer))

	r.Route("/topics/{id}", func(r chi.Router) {
		r.Get("/", handleGetTopic(cfg.Store))
		r.Put("/tags", handleSetTags(cfg.Store))
		r.Post("/archive", handleSetArchived(cfg.Store, true))
		r.Post("/unarchive", handleSetArchived(cfg.Store, false))
		r.Get("/posts/{number}/raw", handleRawPost(cfg.Store, cfg.Blobs))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Debug("Writing response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
