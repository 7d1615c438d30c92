package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
)

// GetTags retrieves all tags ordered by name.
func (s *SQLiteStore) GetTags(ctx context.Context) ([]model.Tag, error) {
	var tags []model.Tag
	err := s.db.SelectContext(ctx, &tags,
		"SELECT id, name, created_at FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	return tags, nil
}

// GetTagsForTopic retrieves all tags associated with a topic.
func (s *SQLiteStore) GetTagsForTopic(
	ctx context.Context,
	topicID string,
) ([]model.Tag, error) {
	var tags []model.Tag
	err := s.db.SelectContext(ctx, &tags, `
		SELECT t.id, t.name, t.created_at FROM tags t
		INNER JOIN topic_tags tt ON t.id = tt.tag_id
		WHERE tt.topic_id = ?
		ORDER BY t.name`, topicID)
	if err != nil {
		return nil, fmt.Errorf("querying tags for topic %s: %w", topicID, err)
	}
	return tags, nil
}

// SetTopicTags replaces all tag associations for a topic, creating tags
// that do not exist yet. Blank and duplicate names are ignored. A local
// change is normalized with provider.CleanTag, the form inbound tags take,
// and marks the topic's first-post mirrors for outbound sync.
func (s *SQLiteStore) SetTopicTags(
	ctx context.Context,
	topicID string,
	names []string,
	local bool,
) error {
	if local {
		cleaned := make([]string, 0, len(names))
		for _, name := range names {
			cleaned = append(cleaned, provider.CleanTag(name))
		}
		names = cleaned
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM topics WHERE id = ?", topicID)
		if err != nil {
			return fmt.Errorf("checking topic %s: %w", topicID, err)
		}
		if exists == 0 {
			return fmt.Errorf("tagging topic %s: %w", topicID, ErrNotFound)
		}

		// Remove existing associations.
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM topic_tags WHERE topic_id = ?", topicID); err != nil {
			return fmt.Errorf("clearing topic tags: %w", err)
		}

		// Insert new associations.
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true

			tagID, err := ensureTag(ctx, tx, name)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO topic_tags (topic_id, tag_id) VALUES (?, ?)",
				topicID, tagID); err != nil {
				return fmt.Errorf("setting tag %s on topic %s: %w", name, topicID, err)
			}
		}

		if local {
			return markSyncEnabled(ctx, tx, topicID)
		}
		return nil
	})
}

// ensureTag returns the id of the named tag, creating it if needed.
func ensureTag(ctx context.Context, tx *sqlx.Tx, name string) (string, error) {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO tags (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING",
		uuid.New().String(), name, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("creating tag %s: %w", name, err)
	}

	var id string
	if err := tx.GetContext(ctx, &id, "SELECT id FROM tags WHERE name = ?", name); err != nil {
		return "", fmt.Errorf("looking up tag %s: %w", name, err)
	}
	return id, nil
}

// DeleteUnusedTags removes tags no longer attached to any topic.
func (s *SQLiteStore) DeleteUnusedTags(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM tags WHERE id NOT IN (SELECT tag_id FROM topic_tags)")
	if err != nil {
		return 0, fmt.Errorf("deleting unused tags: %w", err)
	}
	return result.RowsAffected()
}
