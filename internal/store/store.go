package store

import (
	"context"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// Store defines the persistence interface for mailboxes, their cursors,
// mirrored messages, topics and tags.
type Store interface {
	// === Mailboxes ===

	UpsertMailbox(ctx context.Context, mb model.Mailbox) error
	GetMailbox(ctx context.Context, id string) (*model.Mailbox, error)
	ListMailboxes(ctx context.Context) ([]model.Mailbox, error)
	SaveCursor(ctx context.Context, mailboxID string, c model.Cursor) error
	RecordPass(ctx context.Context, mailboxID string, at time.Time, errMsg string) error

	// === Mirrored messages ===

	FindIncomingMessage(ctx context.Context, mailboxID string, uidValidity, uid uint32) (*model.IncomingMessage, error)
	FindIncomingByMessageID(ctx context.Context, mailboxID, messageID string) (*model.IncomingMessage, error)
	FindIncomingByPost(ctx context.Context, topicID string, postNumber int) (*model.IncomingMessage, error)
	RebindIncomingMessage(ctx context.Context, id string, uidValidity, uid uint32) error
	PendingOutbound(ctx context.Context, mailboxID string, uidValidity uint32) ([]model.IncomingMessage, error)
	SetSyncEnabled(ctx context.Context, id string, enabled bool) error
	SetRawKey(ctx context.Context, id, key string) error

	// === Topics and posts ===

	CreateTopic(ctx context.Context, topic *model.Topic, post *model.Post, msg *model.IncomingMessage) error
	AddReply(ctx context.Context, topicID string, post *model.Post, msg *model.IncomingMessage) error
	FindThreadTopic(ctx context.Context, mailboxID string, messageIDs []string) (string, error)
	GetTopic(ctx context.Context, id string) (*model.Topic, error)
	GetPosts(ctx context.Context, topicID string) ([]model.Post, error)
	SetTopicArchived(ctx context.Context, id string, archived, local bool) error

	// === Tags ===

	GetTags(ctx context.Context) ([]model.Tag, error)
	GetTagsForTopic(ctx context.Context, topicID string) ([]model.Tag, error)
	SetTopicTags(ctx context.Context, topicID string, names []string, local bool) error
	DeleteUnusedTags(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
