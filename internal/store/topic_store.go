package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailsync/internal/model"
)

// CreateTopic inserts a topic with its opening post and the mirror of the
// message the post came from. IDs and timestamps left empty are filled in.
func (s *SQLiteStore) CreateTopic(
	ctx context.Context,
	topic *model.Topic,
	post *model.Post,
	msg *model.IncomingMessage,
) error {
	now := time.Now().UTC()
	if topic.ID == "" {
		topic.ID = uuid.New().String()
	}
	topic.CreatedAt, topic.UpdatedAt = now, now

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO topics (id, mailbox_id, title, archived, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			topic.ID, topic.MailboxID, topic.Title, boolToInt(topic.Archived),
			topic.CreatedAt, topic.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating topic: %w", err)
		}

		post.TopicID = topic.ID
		post.PostNumber = 1
		if err := insertPost(ctx, tx, post); err != nil {
			return err
		}

		msg.TopicID, msg.PostID, msg.PostNumber = topic.ID, post.ID, post.PostNumber
		return insertIncoming(ctx, tx, msg)
	})
}

// AddReply appends a post to an existing topic, numbering it after the
// current last post, and records the mirror of its message.
func (s *SQLiteStore) AddReply(
	ctx context.Context,
	topicID string,
	post *model.Post,
	msg *model.IncomingMessage,
) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var last int
		err := tx.GetContext(ctx, &last,
			"SELECT COALESCE(MAX(post_number), 0) FROM posts WHERE topic_id = ?", topicID)
		if err != nil {
			return fmt.Errorf("numbering reply in topic %s: %w", topicID, err)
		}

		post.TopicID = topicID
		post.PostNumber = last + 1
		if err := insertPost(ctx, tx, post); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE topics SET updated_at = ? WHERE id = ?", time.Now().UTC(), topicID)
		if err != nil {
			return fmt.Errorf("touching topic %s: %w", topicID, err)
		}

		msg.TopicID, msg.PostID, msg.PostNumber = topicID, post.ID, post.PostNumber
		return insertIncoming(ctx, tx, msg)
	})
}

func insertPost(ctx context.Context, tx *sqlx.Tx, p *model.Post) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO posts (id, topic_id, post_number, author, body, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TopicID, p.PostNumber, p.Author, p.Body, p.MessageID, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting post %d of topic %s: %w", p.PostNumber, p.TopicID, err)
	}
	return nil
}

// FindThreadTopic returns the id of the mailbox topic containing a post
// whose Message-ID is one of messageIDs, preferring the most recent post.
func (s *SQLiteStore) FindThreadTopic(
	ctx context.Context,
	mailboxID string,
	messageIDs []string,
) (string, error) {
	if len(messageIDs) == 0 {
		return "", ErrNotFound
	}

	query, args, err := sqlx.In(`
		SELECT p.topic_id FROM posts p
		INNER JOIN topics t ON t.id = p.topic_id
		WHERE t.mailbox_id = ? AND p.message_id IN (?)
		ORDER BY p.created_at DESC, p.post_number DESC
		LIMIT 1`, mailboxID, messageIDs)
	if err != nil {
		return "", fmt.Errorf("building thread query: %w", err)
	}

	var topicID string
	if err := s.db.GetContext(ctx, &topicID, s.db.Rebind(query), args...); err != nil {
		return "", fmt.Errorf("finding thread in %s: %w", mailboxID, notFound(err))
	}
	return topicID, nil
}

// GetTopic retrieves a topic with its tag names.
func (s *SQLiteStore) GetTopic(ctx context.Context, id string) (*model.Topic, error) {
	var t model.Topic
	err := s.db.GetContext(ctx, &t, `
		SELECT id, mailbox_id, title, archived, created_at, updated_at
		FROM topics WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting topic %s: %w", id, notFound(err))
	}

	tags, err := s.GetTagsForTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Tags = make([]string, 0, len(tags))
	for _, tag := range tags {
		t.Tags = append(t.Tags, tag.Name)
	}
	return &t, nil
}

// GetPosts retrieves the posts of a topic in order.
func (s *SQLiteStore) GetPosts(ctx context.Context, topicID string) ([]model.Post, error) {
	var posts []model.Post
	err := s.db.SelectContext(ctx, &posts, `
		SELECT id, topic_id, post_number, author, body, message_id, created_at
		FROM posts WHERE topic_id = ? ORDER BY post_number`, topicID)
	if err != nil {
		return nil, fmt.Errorf("querying posts of topic %s: %w", topicID, err)
	}
	return posts, nil
}

// SetTopicArchived updates the archived state of a topic. A local change
// marks the topic's first-post mirrors for outbound sync; a change that
// originates from the server does not.
func (s *SQLiteStore) SetTopicArchived(ctx context.Context, id string, archived, local bool) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE topics SET archived = ?, updated_at = ? WHERE id = ?",
			boolToInt(archived), time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("archiving topic %s: %w", id, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("archiving topic %s: %w", id, ErrNotFound)
		}

		if local {
			return markSyncEnabled(ctx, tx, id)
		}
		return nil
	})
}

func markSyncEnabled(ctx context.Context, tx *sqlx.Tx, topicID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE incoming_messages SET sync_enabled = 1
		WHERE topic_id = ? AND post_number = 1`, topicID)
	if err != nil {
		return fmt.Errorf("marking topic %s for sync: %w", topicID, err)
	}
	return nil
}
