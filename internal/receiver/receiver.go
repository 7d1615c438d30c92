// Package receiver turns raw messages into topics and posts. A message
// that replies to a known post joins that post's topic; any other message
// opens a new topic.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/mailsync/internal/blob"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
)

// Meta identifies where a raw message came from.
type Meta struct {
	MailboxID   string
	UIDValidity uint32
	UID         uint32
}

// ProcessingError reports a message that cannot be ingested. Retrying
// the same bytes fails the same way.
type ProcessingError struct {
	UID uint32
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing UID %d: %v", e.UID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// IsProcessingError reports whether err (or any error in its chain) is a
// ProcessingError.
func IsProcessingError(err error) bool {
	var procErr *ProcessingError
	return errors.As(err, &procErr)
}

// Store is the persistence the receiver needs.
type Store interface {
	FindIncomingMessage(ctx context.Context, mailboxID string, uidValidity, uid uint32) (*model.IncomingMessage, error)
	FindIncomingByMessageID(ctx context.Context, mailboxID, messageID string) (*model.IncomingMessage, error)
	RebindIncomingMessage(ctx context.Context, id string, uidValidity, uid uint32) error
	FindThreadTopic(ctx context.Context, mailboxID string, messageIDs []string) (string, error)
	CreateTopic(ctx context.Context, topic *model.Topic, post *model.Post, msg *model.IncomingMessage) error
	AddReply(ctx context.Context, topicID string, post *model.Post, msg *model.IncomingMessage) error
	SetRawKey(ctx context.Context, id, key string) error
}

// Receiver ingests raw messages.
type Receiver struct {
	store Store
	blobs blob.Store
	log   *logrus.Entry
}

// New creates a receiver. blobs may be nil to disable raw retention.
func New(st Store, blobs blob.Store) *Receiver {
	return &Receiver{
		store: st,
		blobs: blobs,
		log:   logrus.WithField("pkg", "receiver"),
	}
}

// Receive stores raw as a post and returns the mirror linking it to meta.
// Receiving the same message again returns the existing mirror, rebinding
// it to meta's UID when the message reappears under a new UID validity.
func (r *Receiver) Receive(ctx context.Context, raw []byte, meta Meta) (*model.IncomingMessage, error) {
	existing, err := r.store.FindIncomingMessage(ctx, meta.MailboxID, meta.UIDValidity, meta.UID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	parsed, err := Parse(raw)
	if err != nil {
		return nil, &ProcessingError{UID: meta.UID, Err: err}
	}

	if parsed.MessageID != "" {
		known, err := r.store.FindIncomingByMessageID(ctx, meta.MailboxID, parsed.MessageID)
		switch {
		case err == nil:
			if err := r.store.RebindIncomingMessage(ctx, known.ID, meta.UIDValidity, meta.UID); err != nil {
				return nil, err
			}
			known.UIDValidity, known.UID = meta.UIDValidity, meta.UID
			r.log.WithFields(logrus.Fields{
				"mailbox":    meta.MailboxID,
				"uid":        meta.UID,
				"message_id": parsed.MessageID,
			}).Debug("Rebound known message")
			return known, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	post := &model.Post{
		Author:    parsed.From,
		Body:      parsed.Body(),
		MessageID: parsed.MessageID,
		CreatedAt: parsed.Date,
	}
	msg := &model.IncomingMessage{
		MailboxID:   meta.MailboxID,
		UIDValidity: meta.UIDValidity,
		UID:         meta.UID,
		MessageID:   parsed.MessageID,
	}

	topicID, err := r.store.FindThreadTopic(ctx, meta.MailboxID, parsed.ThreadIDs())
	switch {
	case err == nil:
		if err := r.store.AddReply(ctx, topicID, post, msg); err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotFound):
		topic := &model.Topic{MailboxID: meta.MailboxID, Title: parsed.Title()}
		if err := r.store.CreateTopic(ctx, topic, post, msg); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	r.retain(ctx, msg, raw)

	r.log.WithFields(logrus.Fields{
		"mailbox":     meta.MailboxID,
		"uid":         meta.UID,
		"topic":       msg.TopicID,
		"post_number": msg.PostNumber,
	}).Debug("Received message")

	return msg, nil
}

// retain keeps the raw bytes in the blob store. Failures are logged and
// do not fail ingestion.
func (r *Receiver) retain(ctx context.Context, msg *model.IncomingMessage, raw []byte) {
	if r.blobs == nil {
		return
	}

	key := blob.MessageKey(msg.MailboxID, msg.UIDValidity, msg.UID)
	if err := r.blobs.Write(ctx, key, raw); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("Failed to retain raw message")
		return
	}
	if err := r.store.SetRawKey(ctx, msg.ID, key); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("Failed to record raw message key")
		return
	}
	msg.RawKey = key
}
