package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailsync/internal/model"
)

const incomingColumns = `
	id, mailbox_id, uid_validity, uid, message_id, topic_id, post_id,
	post_number, sync_enabled, raw_key, created_at`

// FindIncomingMessage retrieves the mirror keyed by (mailbox, UID
// validity, UID). It returns ErrNotFound when no such mirror exists.
func (s *SQLiteStore) FindIncomingMessage(
	ctx context.Context,
	mailboxID string,
	uidValidity, uid uint32,
) (*model.IncomingMessage, error) {
	var m model.IncomingMessage
	err := s.db.GetContext(ctx, &m, `
		SELECT `+incomingColumns+` FROM incoming_messages
		WHERE mailbox_id = ? AND uid_validity = ? AND uid = ?`,
		mailboxID, uidValidity, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("finding message %d/%d in %s: %w",
			uidValidity, uid, mailboxID, notFound(err))
	}
	return &m, nil
}

// FindIncomingByMessageID retrieves the mirror of the message with the
// given Message-ID in a mailbox.
func (s *SQLiteStore) FindIncomingByMessageID(
	ctx context.Context,
	mailboxID, messageID string,
) (*model.IncomingMessage, error) {
	var m model.IncomingMessage
	err := s.db.GetContext(ctx, &m, `
		SELECT `+incomingColumns+` FROM incoming_messages
		WHERE mailbox_id = ? AND message_id = ?
		ORDER BY created_at LIMIT 1`,
		mailboxID, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding message %s in %s: %w", messageID, mailboxID, notFound(err))
	}
	return &m, nil
}

// FindIncomingByPost retrieves the mirror that produced the given post of
// a topic.
func (s *SQLiteStore) FindIncomingByPost(
	ctx context.Context,
	topicID string,
	postNumber int,
) (*model.IncomingMessage, error) {
	var m model.IncomingMessage
	err := s.db.GetContext(ctx, &m, `
		SELECT `+incomingColumns+` FROM incoming_messages
		WHERE topic_id = ? AND post_number = ?`,
		topicID, postNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("finding post %d of topic %s: %w", postNumber, topicID, notFound(err))
	}
	return &m, nil
}

// RebindIncomingMessage moves a mirror onto a new (UID validity, UID)
// key, as happens when a message is rediscovered after an epoch reset.
func (s *SQLiteStore) RebindIncomingMessage(ctx context.Context, id string, uidValidity, uid uint32) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE incoming_messages SET uid_validity = ?, uid = ? WHERE id = ?",
		uidValidity, uid, id,
	)
	if err != nil {
		return fmt.Errorf("rebinding message %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rebinding message %s: %w", id, ErrNotFound)
	}
	return nil
}

// PendingOutbound lists the first-post mirrors of a mailbox epoch that
// carry a local change awaiting push, ordered by UID.
func (s *SQLiteStore) PendingOutbound(
	ctx context.Context,
	mailboxID string,
	uidValidity uint32,
) ([]model.IncomingMessage, error) {
	var pending []model.IncomingMessage
	err := s.db.SelectContext(ctx, &pending, `
		SELECT `+incomingColumns+` FROM incoming_messages
		WHERE mailbox_id = ? AND uid_validity = ?
		  AND sync_enabled = 1 AND post_number = 1
		ORDER BY uid`,
		mailboxID, uidValidity,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending messages of %s: %w", mailboxID, err)
	}
	return pending, nil
}

// SetSyncEnabled sets or clears the mirror's pending change marker.
func (s *SQLiteStore) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE incoming_messages SET sync_enabled = ? WHERE id = ?", boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("setting sync flag of message %s: %w", id, err)
	}
	return nil
}

// SetRawKey records where the raw message of a mirror is retained.
func (s *SQLiteStore) SetRawKey(ctx context.Context, id, key string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE incoming_messages SET raw_key = ? WHERE id = ?", key, id)
	if err != nil {
		return fmt.Errorf("setting raw key of message %s: %w", id, err)
	}
	return nil
}

func insertIncoming(ctx context.Context, tx *sqlx.Tx, m *model.IncomingMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO incoming_messages (
			id, mailbox_id, uid_validity, uid, message_id, topic_id, post_id,
			post_number, sync_enabled, raw_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MailboxID, m.UIDValidity, m.UID, m.MessageID, m.TopicID, m.PostID,
		m.PostNumber, boolToInt(m.SyncEnabled), m.RawKey, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message %d/%d: %w", m.UIDValidity, m.UID, err)
	}
	return nil
}
