package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

const mailboxColumns = `
	id, name, group_name, provider, host, port, tls, username, read_only,
	uid_validity, last_seen_uid, last_pass_at, last_error`

// UpsertMailbox inserts a mailbox or updates its connection settings.
// The stored cursor and pass status are never touched.
func (s *SQLiteStore) UpsertMailbox(ctx context.Context, mb model.Mailbox) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailboxes (
			id, name, group_name, provider, host, port, tls, username, read_only,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			group_name = excluded.group_name,
			provider = excluded.provider,
			host = excluded.host,
			port = excluded.port,
			tls = excluded.tls,
			username = excluded.username,
			read_only = excluded.read_only,
			updated_at = excluded.updated_at`,
		mb.ID, mb.Name, mb.Group, string(mb.Provider), mb.Host, mb.Port,
		boolToInt(mb.TLS), mb.Username, boolToInt(mb.ReadOnly),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting mailbox %s: %w", mb.ID, err)
	}
	return nil
}

// GetMailbox retrieves a mailbox with its cursor.
func (s *SQLiteStore) GetMailbox(ctx context.Context, id string) (*model.Mailbox, error) {
	var mb model.Mailbox
	err := s.db.GetContext(ctx, &mb,
		"SELECT "+mailboxColumns+" FROM mailboxes WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting mailbox %s: %w", id, notFound(err))
	}
	return &mb, nil
}

// ListMailboxes retrieves all mailboxes ordered by id.
func (s *SQLiteStore) ListMailboxes(ctx context.Context) ([]model.Mailbox, error) {
	var mailboxes []model.Mailbox
	err := s.db.SelectContext(ctx, &mailboxes,
		"SELECT "+mailboxColumns+" FROM mailboxes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying mailboxes: %w", err)
	}
	return mailboxes, nil
}

// SaveCursor persists the synchronization position of a mailbox.
func (s *SQLiteStore) SaveCursor(ctx context.Context, mailboxID string, c model.Cursor) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mailboxes SET uid_validity = ?, last_seen_uid = ?, updated_at = ?
		WHERE id = ?`,
		c.UIDValidity, c.LastSeenUID, time.Now().UTC(), mailboxID,
	)
	if err != nil {
		return fmt.Errorf("saving cursor of mailbox %s: %w", mailboxID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("saving cursor of mailbox %s: %w", mailboxID, ErrNotFound)
	}
	return nil
}

// RecordPass stores the completion time and outcome of the latest pass.
// An empty errMsg marks success.
func (s *SQLiteStore) RecordPass(ctx context.Context, mailboxID string, at time.Time, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE mailboxes SET last_pass_at = ?, last_error = ? WHERE id = ?",
		at.UTC(), errMsg, mailboxID,
	)
	if err != nil {
		return fmt.Errorf("recording pass of mailbox %s: %w", mailboxID, err)
	}
	return nil
}
