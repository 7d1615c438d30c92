package sync

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// PassState is a step of a synchronization pass.
type PassState int

const (
	StateIdle PassState = iota
	StateConnected
	StateValidatingEpoch
	StateCursorReset
	StatePullingOld
	StatePullingNew
	StateCursorPersisted
	StatePushingLocal
	StateDone
	StateFailed
)

var passStateNames = [...]string{
	StateIdle:            "idle",
	StateConnected:       "connected",
	StateValidatingEpoch: "validating-epoch",
	StateCursorReset:     "cursor-reset",
	StatePullingOld:      "pulling-old",
	StatePullingNew:      "pulling-new",
	StateCursorPersisted: "cursor-persisted",
	StatePushingLocal:    "pushing-local",
	StateDone:            "done",
	StateFailed:          "failed",
}

func (s PassState) String() string {
	if s >= 0 && int(s) < len(passStateNames) {
		return passStateNames[s]
	}
	return fmt.Sprintf("PassState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s PassState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition follows s.
func (s PassState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// PassResult summarizes one pass over one mailbox.
type PassResult struct {
	MailboxID   string `json:"mailbox_id"`
	UIDValidity uint32 `json:"uid_validity"`

	// PreviousUID is the cursor the pass started from.
	PreviousUID uint32 `json:"previous_uid"`
	LastSeenUID uint32 `json:"last_seen_uid"`
	EpochReset  bool   `json:"epoch_reset"`

	OldRefreshed   int `json:"old_refreshed"`
	NewIngested    int `json:"new_ingested"`
	NewFailed      int `json:"new_failed"`
	OutboundPushed int `json:"outbound_pushed"`

	State PassState `json:"state"`
	Error string    `json:"error,omitempty"`

	// Visited lists the states the pass went through, in order.
	Visited []PassState `json:"-"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// enter moves the pass to next.
func (r *PassResult) enter(log *logrus.Entry, next PassState) {
	log.WithFields(logrus.Fields{
		"from": r.State.String(),
		"to":   next.String(),
	}).Debug("Pass state")
	r.State = next
	r.Visited = append(r.Visited, next)
}
