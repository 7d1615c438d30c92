package model

import "time"

// RemoteMessage is a snapshot of a message as fetched from the server.
// Which fields are populated depends on what was requested.
type RemoteMessage struct {
	UID       uint32
	Flags     []string
	Labels    []string
	MessageID string
	Body      []byte
}

// IncomingMessage is the local mirror of a remote message. It links the
// (mailbox, UIDValidity, UID) key to the post and topic created from it.
type IncomingMessage struct {
	ID          string `json:"id" db:"id"`
	MailboxID   string `json:"mailbox_id" db:"mailbox_id"`
	UIDValidity uint32 `json:"uid_validity" db:"uid_validity"`
	UID         uint32 `json:"uid" db:"uid"`

	// MessageID is the RFC 5322 Message-ID header value.
	MessageID string `json:"message_id" db:"message_id"`

	TopicID    string `json:"topic_id" db:"topic_id"`
	PostID     string `json:"post_id" db:"post_id"`
	PostNumber int    `json:"post_number" db:"post_number"`

	// SyncEnabled marks a pending local change that the outbound phase
	// must push to the server.
	SyncEnabled bool `json:"sync_enabled" db:"sync_enabled"`

	// RawKey is the blob store key of the retained raw message, if any.
	RawKey string `json:"raw_key,omitempty" db:"raw_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsFirstPost reports whether the mirror created the opening post of its
// topic. Only those mirrors drive topic state.
func (m *IncomingMessage) IsFirstPost() bool {
	return m != nil && m.PostNumber == 1
}
