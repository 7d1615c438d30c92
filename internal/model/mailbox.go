package model

import "time"

// ProviderKind selects the vendor implementation used to talk to a mailbox.
type ProviderKind string

const (
	ProviderGeneric ProviderKind = "generic"
	ProviderGmail   ProviderKind = "gmail"
)

// Cursor is the persisted synchronization position of a mailbox.
//
// LastSeenUID is only comparable with UIDs issued under the same
// UIDValidity. A zero LastSeenUID means the mailbox has never been
// synchronized in the current epoch.
type Cursor struct {
	UIDValidity uint32 `json:"uid_validity" db:"uid_validity"`
	LastSeenUID uint32 `json:"last_seen_uid" db:"last_seen_uid"`
}

// Mailbox identifies one remote folder mirrored locally.
type Mailbox struct {
	// ID is the stable local identifier, also used as the credential key.
	ID string `json:"id" db:"id"`

	// Name is the remote folder name, e.g. "INBOX".
	Name string `json:"name" db:"name"`

	// Group is the local destination the mailbox feeds (informational).
	Group string `json:"group" db:"group_name"`

	Provider ProviderKind `json:"provider" db:"provider"`
	Host     string       `json:"host" db:"host"`
	Port     int          `json:"port" db:"port"`
	TLS      bool         `json:"tls" db:"tls"`
	Username string       `json:"username" db:"username"`

	// ReadOnly disables the outbound (local to server) phase for this mailbox.
	ReadOnly bool `json:"read_only" db:"read_only"`

	Cursor

	// LastPassAt is when the last pass for this mailbox finished, if any.
	LastPassAt *time.Time `json:"last_pass_at,omitempty" db:"last_pass_at"`

	// LastError holds the error of the last failed pass, empty on success.
	LastError string `json:"last_error,omitempty" db:"last_error"`
}
