package model

import "time"

// Topic is a local conversation thread built from one or more messages.
type Topic struct {
	ID        string    `json:"id" db:"id"`
	MailboxID string    `json:"mailbox_id" db:"mailbox_id"`
	Title     string    `json:"title" db:"title"`
	Archived  bool      `json:"archived" db:"archived"`
	Tags      []string  `json:"tags" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Post is a single message within a topic.
type Post struct {
	ID         string    `json:"id" db:"id"`
	TopicID    string    `json:"topic_id" db:"topic_id"`
	PostNumber int       `json:"post_number" db:"post_number"`
	Author     string    `json:"author" db:"author"`
	Body       string    `json:"body" db:"body"`
	MessageID  string    `json:"message_id" db:"message_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
