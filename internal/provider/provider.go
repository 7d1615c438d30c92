// Package provider defines the capability set the sync engine needs from
// a remote mailbox, independent of the mail vendor behind it.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mailsync/internal/model"
)

// Field selects a message attribute for Fetch and Store.
type Field uint8

const (
	FieldUID Field = 1 << iota
	FieldFlags
	FieldLabels
	FieldBody
)

// Has reports whether every field in other is present in f.
func (f Field) Has(other Field) bool {
	return f&other == other
}

func (f Field) String() string {
	switch f {
	case FieldUID:
		return "UID"
	case FieldFlags:
		return "FLAGS"
	case FieldLabels:
		return "LABELS"
	case FieldBody:
		return "BODY"
	}
	return fmt.Sprintf("Field(%d)", uint8(f))
}

// Inbox membership markers. Either one in a message's labels means the
// message is in the inbox.
const (
	LabelInbox     = `\Inbox`
	LabelInboxName = "INBOX"
)

// Status is what the server reports when a mailbox is opened.
type Status struct {
	UIDValidity uint32
	Messages    uint32
	UIDNext     uint32
}

// UIDRange bounds a UID listing. Zero on either side means unbounded.
type UIDRange struct {
	From uint32
	To   uint32
}

// All is the unbounded range.
var All = UIDRange{}

// Contains reports whether uid falls within r.
func (r UIDRange) Contains(uid uint32) bool {
	if r.From != 0 && uid < r.From {
		return false
	}
	if r.To != 0 && uid > r.To {
		return false
	}
	return true
}

// Provider is the capability set of a remote mailbox connection. An
// implementation holds at most one live connection, acquired by Connect
// and released by Disconnect.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// OpenMailbox selects the named mailbox, read-only unless writable.
	OpenMailbox(ctx context.Context, name string, writable bool) (Status, error)

	// UIDs lists the UIDs within r in ascending order.
	UIDs(ctx context.Context, r UIDRange) ([]uint32, error)

	// Fetch returns the requested fields for the given UIDs. UIDs that no
	// longer exist are omitted from the result.
	Fetch(ctx context.Context, uids []uint32, fields Field) ([]model.RemoteMessage, error)

	// Store transitions field (FieldFlags or FieldLabels) of a message
	// from oldValues to newValues, sending only the difference.
	Store(ctx context.Context, uid uint32, field Field, oldValues, newValues []string) error

	// ToTag maps a flag, label or mailbox name to a tag. An empty result
	// means the value carries no tag.
	ToTag(name string) string

	// TagToFlag maps a tag to a flag, or "" if it has none.
	TagToFlag(tag string) string

	// TagToLabel maps a tag to a label, or "" if it has none.
	TagToLabel(tag string) string
}

// Factory builds a provider for a mailbox.
type Factory func(mb model.Mailbox) (Provider, error)

// AuthError indicates that the server rejected the mailbox credentials.
type AuthError struct {
	MailboxID string
	Message   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.MailboxID, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrNotConnected is returned by operations issued before Connect.
var ErrNotConnected = errors.New("provider not connected")
