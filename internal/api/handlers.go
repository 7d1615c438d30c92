package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mailsync/internal/blob"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/internal/sync"
)

// mailboxView is a mailbox together with its poller status.
type mailboxView struct {
	model.Mailbox
	Status *sync.SyncStatus `json:"status,omitempty"`
}

type topicView struct {
	*model.Topic
	Posts []model.Post `json:"posts"`
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

func handleHealth(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleListMailboxes(st Store, syncer Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mailboxes, err := st.ListMailboxes(r.Context())
		if err != nil {
			internalError(w, err)
			return
		}

		statuses := map[string]sync.SyncStatus{}
		if syncer != nil {
			for _, s := range syncer.Statuses() {
				statuses[s.MailboxID] = s
			}
		}

		views := make([]mailboxView, 0, len(mailboxes))
		for _, mb := range mailboxes {
			view := mailboxView{Mailbox: mb}
			if s, ok := statuses[mb.ID]; ok {
				view.Status = &s
			}
			views = append(views, view)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleTriggerSync(syncer Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncer == nil {
			writeError(w, http.StatusServiceUnavailable, "poller not running")
			return
		}

		id := chi.URLParam(r, "id")
		if err := syncer.Trigger(id); err != nil {
			if errors.Is(err, sync.ErrUnknownMailbox) {
				writeError(w, http.StatusNotFound, "mailbox not found")
				return
			}
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"mailbox_id": id, "status": "triggered"})
	}
}

func handleGetTopic(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		topic, err := st.GetTopic(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		posts, err := st.GetPosts(r.Context(), id)
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, topicView{Topic: topic, Posts: posts})
	}
}

func handleSetTags(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tagsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		id := chi.URLParam(r, "id")
		if err := st.SetTopicTags(r.Context(), id, req.Tags, true); err != nil {
			storeError(w, err)
			return
		}
		respondTopic(w, r, st, id)
	}
}

func handleSetArchived(st Store, archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := st.SetTopicArchived(r.Context(), id, archived, true); err != nil {
			storeError(w, err)
			return
		}
		respondTopic(w, r, st, id)
	}
}

// handleRawPost serves the retained RFC 5322 source of a post.
func handleRawPost(st Store, blobs Blobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if blobs == nil {
			writeError(w, http.StatusServiceUnavailable, "raw message retention is disabled")
			return
		}
		number, err := strconv.Atoi(chi.URLParam(r, "number"))
		if err != nil || number < 1 {
			writeError(w, http.StatusBadRequest, "invalid post number")
			return
		}

		msg, err := st.FindIncomingByPost(r.Context(), chi.URLParam(r, "id"), number)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "post not found")
				return
			}
			internalError(w, err)
			return
		}
		if msg.RawKey == "" {
			writeError(w, http.StatusNotFound, "raw message not retained")
			return
		}

		raw, err := blobs.Read(r.Context(), msg.RawKey)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				writeError(w, http.StatusNotFound, "raw message not found")
				return
			}
			internalError(w, err)
			return
		}
		w.Header().Set("Content-Type", "message/rfc822")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(raw); err != nil {
			logrus.WithError(err).Debug("Writing response failed")
		}
	}
}

func respondTopic(w http.ResponseWriter, r *http.Request, st Store, id string) {
	topic, err := st.GetTopic(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "topic not found")
		return
	}
	internalError(w, err)
}

func internalError(w http.ResponseWriter, err error) {
	logrus.WithError(err).WithField("pkg", "api").Error("Request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
