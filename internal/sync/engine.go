// Package sync reconciles remote mailboxes with their local mirrors.
//
// A pass pulls flag and label changes of already known messages, ingests
// new messages, advances the mailbox cursor, and pushes pending local
// topic changes back to the server.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
	"github.com/nhle/mailsync/internal/receiver"
	"github.com/nhle/mailsync/internal/store"
)

// Receiver ingests raw messages. Errors matching receiver.ProcessingError
// mark a message that cannot be ingested.
type Receiver interface {
	Receive(ctx context.Context, raw []byte, meta receiver.Meta) (*model.IncomingMessage, error)
}

// Store is the persistence the engine needs.
type Store interface {
	SaveCursor(ctx context.Context, mailboxID string, c model.Cursor) error
	FindIncomingMessage(ctx context.Context, mailboxID string, uidValidity, uid uint32) (*model.IncomingMessage, error)
	PendingOutbound(ctx context.Context, mailboxID string, uidValidity uint32) ([]model.IncomingMessage, error)
	SetSyncEnabled(ctx context.Context, id string, enabled bool) error
	GetTopic(ctx context.Context, id string) (*model.Topic, error)
	SetTopicArchived(ctx context.Context, id string, archived, local bool) error
	SetTopicTags(ctx context.Context, topicID string, names []string, local bool) error
}

// Config controls an Engine.
type Config struct {
	// ReadOnly disables the outbound phase for every mailbox.
	ReadOnly bool

	// TaggingEnabled turns on tag sync. Without it inbound tags are not
	// applied and the outbound phase is skipped.
	TaggingEnabled bool

	OldSampleSize int
	NewBatchSize  int

	// Rand samples old UIDs. Nil uses the global generator.
	Rand RandSource
}

// Engine runs synchronization passes.
type Engine struct {
	store    Store
	receiver Receiver
	factory  provider.Factory
	cfg      Config
	now      func() time.Time
	log      *logrus.Entry
}

// NewEngine creates an engine. Zero work bounds in cfg take the defaults.
func NewEngine(st Store, rcv Receiver, factory provider.Factory, cfg Config) *Engine {
	if cfg.OldSampleSize <= 0 {
		cfg.OldSampleSize = DefaultOldSampleSize
	}
	if cfg.NewBatchSize <= 0 {
		cfg.NewBatchSize = DefaultNewBatchSize
	}
	if cfg.Rand == nil {
		cfg.Rand = globalRand{}
	}

	return &Engine{
		store:    st,
		receiver: rcv,
		factory:  factory,
		cfg:      cfg,
		now:      time.Now,
		log:      logrus.WithField("pkg", "sync"),
	}
}

// RunPass performs one inbound and outbound reconciliation of mb. The
// caller must not run two passes for the same mailbox at once.
//
// The returned result is never nil; on error its State is StateFailed.
func (e *Engine) RunPass(ctx context.Context, mb model.Mailbox) (*PassResult, error) {
	log := e.log.WithField("mailbox", mb.ID)
	res := &PassResult{
		MailboxID:   mb.ID,
		UIDValidity: mb.UIDValidity,
		PreviousUID: mb.LastSeenUID,
		LastSeenUID: mb.LastSeenUID,
		State:       StateIdle,
		StartedAt:   e.now(),
	}

	err := e.run(ctx, log, mb, res)
	res.FinishedAt = e.now()

	if err != nil {
		res.enter(log, StateFailed)
		res.Error = err.Error()
		log.WithError(err).Error("Pass failed")
		return res, err
	}

	res.enter(log, StateDone)
	log.WithFields(logrus.Fields{
		"uid_validity":  res.UIDValidity,
		"last_seen_uid": res.LastSeenUID,
		"old":           res.OldRefreshed,
		"new":           res.NewIngested,
		"failed":        res.NewFailed,
		"pushed":        res.OutboundPushed,
		"duration":      res.FinishedAt.Sub(res.StartedAt),
	}).Info("Pass complete")
	return res, nil
}

func (e *Engine) run(ctx context.Context, log *logrus.Entry, mb model.Mailbox, res *PassResult) error {
	prov, err := e.factory(mb)
	if err != nil {
		return fmt.Errorf("creating provider for %s: %w", mb.ID, err)
	}
	if err := prov.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", mb.ID, err)
	}
	defer func() {
		if err := prov.Disconnect(); err != nil {
			log.WithError(err).Debug("Disconnect failed")
		}
	}()
	res.enter(log, StateConnected)

	status, err := prov.OpenMailbox(ctx, mb.Name, false)
	if err != nil {
		return fmt.Errorf("opening mailbox %s: %w", mb.Name, err)
	}
	res.enter(log, StateValidatingEpoch)

	cursor := mb.Cursor
	if status.UIDValidity != cursor.UIDValidity {
		entry := log.WithFields(logrus.Fields{
			"stored_uid_validity": cursor.UIDValidity,
			"uid_validity":        status.UIDValidity,
		})
		if cursor.UIDValidity != 0 {
			entry.Warn("UID validity changed, resetting cursor")
		} else {
			entry.Info("First synchronization of mailbox")
		}
		cursor = model.Cursor{UIDValidity: status.UIDValidity}
		res.EpochReset = true
		res.enter(log, StateCursorReset)
	}
	res.UIDValidity = cursor.UIDValidity

	oldUIDs, newUIDs, err := e.listUIDs(ctx, prov, cursor.LastSeenUID)
	if err != nil {
		return err
	}
	oldUIDs = SampleUIDs(oldUIDs, e.cfg.OldSampleSize, e.cfg.Rand)
	newUIDs = FirstUIDs(newUIDs, e.cfg.NewBatchSize)

	mapper := NewMapper(prov, mb.Name)

	res.enter(log, StatePullingOld)
	res.OldRefreshed, err = e.pullOld(ctx, log, mb, cursor, prov, mapper, oldUIDs)
	if err != nil {
		return err
	}

	res.enter(log, StatePullingNew)
	results, err := e.pullNew(ctx, log, mb, cursor, prov, mapper, newUIDs)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			res.NewFailed++
		} else {
			res.NewIngested++
		}
	}
	cursor.LastSeenUID = AdvanceCursor(cursor.LastSeenUID, results)

	if err := e.store.SaveCursor(ctx, mb.ID, cursor); err != nil {
		return fmt.Errorf("persisting cursor: %w", err)
	}
	res.LastSeenUID = cursor.LastSeenUID
	res.enter(log, StateCursorPersisted)

	if reason := e.outboundSkipReason(mb); reason != "" {
		log.WithField("reason", reason).Debug("Skipping outbound phase")
		return nil
	}

	res.enter(log, StatePushingLocal)
	res.OutboundPushed, err = e.pushLocal(ctx, log, mb, cursor, prov, mapper)
	return err
}

// listUIDs returns the old and new UIDs around lastSeenUID, ascending.
func (e *Engine) listUIDs(
	ctx context.Context, prov provider.Provider, lastSeenUID uint32,
) (oldUIDs, newUIDs []uint32, err error) {
	if lastSeenUID == 0 {
		all, err := prov.UIDs(ctx, provider.All)
		if err != nil {
			return nil, nil, fmt.Errorf("listing UIDs: %w", err)
		}
		oldUIDs, newUIDs = Partition(all, 0)
		return oldUIDs, newUIDs, nil
	}

	below, err := prov.UIDs(ctx, provider.UIDRange{To: lastSeenUID})
	if err != nil {
		return nil, nil, fmt.Errorf("listing old UIDs: %w", err)
	}
	above, err := prov.UIDs(ctx, provider.UIDRange{From: lastSeenUID + 1})
	if err != nil {
		return nil, nil, fmt.Errorf("listing new UIDs: %w", err)
	}

	// Servers answer "n:*" with the highest UID even when it is below n.
	oldUIDs, _ = Partition(below, lastSeenUID)
	_, newUIDs = Partition(above, lastSeenUID)
	return oldUIDs, newUIDs, nil
}

// pullOld refreshes the topics of already mirrored messages from their
// current flags and labels. It returns how many mirrors were found.
func (e *Engine) pullOld(
	ctx context.Context,
	log *logrus.Entry,
	mb model.Mailbox,
	cursor model.Cursor,
	prov provider.Provider,
	mapper Mapper,
	uids []uint32,
) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}

	messages, err := prov.Fetch(ctx, uids, provider.FieldUID|provider.FieldFlags|provider.FieldLabels)
	if err != nil {
		return 0, fmt.Errorf("fetching old messages: %w", err)
	}

	refreshed := 0
	for _, rm := range messages {
		mirror, err := e.store.FindIncomingMessage(ctx, mb.ID, cursor.UIDValidity, rm.UID)
		if errors.Is(err, store.ErrNotFound) {
			log.WithField("uid", rm.UID).Debug("No local mirror")
			continue
		}
		if err != nil {
			return refreshed, err
		}

		if err := e.updateTopic(ctx, mapper, mirror, rm); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}

// pullNew ingests new messages in ascending UID order and reports one
// result per fetched message. Only processing errors are tolerated.
func (e *Engine) pullNew(
	ctx context.Context,
	log *logrus.Entry,
	mb model.Mailbox,
	cursor model.Cursor,
	prov provider.Provider,
	mapper Mapper,
	uids []uint32,
) ([]IngestResult, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	messages, err := prov.Fetch(ctx, uids,
		provider.FieldUID|provider.FieldFlags|provider.FieldLabels|provider.FieldBody)
	if err != nil {
		return nil, fmt.Errorf("fetching new messages: %w", err)
	}

	results := make([]IngestResult, 0, len(messages))
	for _, rm := range messages {
		mirror, err := e.receiver.Receive(ctx, rm.Body, receiver.Meta{
			MailboxID:   mb.ID,
			UIDValidity: cursor.UIDValidity,
			UID:         rm.UID,
		})
		if err != nil {
			if !receiver.IsProcessingError(err) {
				return results, fmt.Errorf("receiving UID %d: %w", rm.UID, err)
			}
			log.WithError(err).WithField("uid", rm.UID).Warn("Skipping message that failed processing")
			results = append(results, IngestResult{UID: rm.UID, Err: err})
			continue
		}

		if err := e.updateTopic(ctx, mapper, mirror, rm); err != nil {
			return results, err
		}
		results = append(results, IngestResult{UID: rm.UID})
	}
	return results, nil
}

// updateTopic applies a message's flags and labels to its topic. Only a
// first post drives topic state, and a pending local change wins until it
// has been pushed. Changes made here are never pushed back.
func (e *Engine) updateTopic(
	ctx context.Context,
	mapper Mapper,
	mirror *model.IncomingMessage,
	rm model.RemoteMessage,
) error {
	if !mirror.IsFirstPost() || mirror.SyncEnabled {
		return nil
	}

	topic, err := e.store.GetTopic(ctx, mirror.TopicID)
	if err != nil {
		return fmt.Errorf("loading topic of UID %d: %w", rm.UID, err)
	}

	if archived := EmailArchived(rm.Labels); archived != topic.Archived {
		if err := e.store.SetTopicArchived(ctx, topic.ID, archived, false); err != nil {
			return err
		}
	}

	if !e.cfg.TaggingEnabled {
		return nil
	}
	if tags := mapper.Tags(rm.Flags, rm.Labels); !sameTags(tags, topic.Tags) {
		if err := e.store.SetTopicTags(ctx, topic.ID, tags, false); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) outboundSkipReason(mb model.Mailbox) string {
	switch {
	case e.cfg.ReadOnly:
		return "read-only"
	case mb.ReadOnly:
		return "mailbox read-only"
	case !e.cfg.TaggingEnabled:
		return "tagging disabled"
	}
	return ""
}

// pushLocal writes pending local topic changes to the server and returns
// how many messages were updated. Each store is computed against flags
// and labels fetched immediately before it.
func (e *Engine) pushLocal(
	ctx context.Context,
	log *logrus.Entry,
	mb model.Mailbox,
	cursor model.Cursor,
	prov provider.Provider,
	mapper Mapper,
) (int, error) {
	pending, err := e.store.PendingOutbound(ctx, mb.ID, cursor.UIDValidity)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if _, err := prov.OpenMailbox(ctx, mb.Name, true); err != nil {
		return 0, fmt.Errorf("reopening mailbox %s for writing: %w", mb.Name, err)
	}

	pushed := 0
	for _, mirror := range pending {
		if !mirror.IsFirstPost() {
			continue
		}

		current, err := prov.Fetch(ctx, []uint32{mirror.UID}, provider.FieldUID|provider.FieldFlags|provider.FieldLabels)
		if err != nil {
			return pushed, fmt.Errorf("fetching UID %d before store: %w", mirror.UID, err)
		}
		if len(current) == 0 {
			log.WithField("uid", mirror.UID).Debug("Message no longer on server, leaving change pending")
			continue
		}
		remote := current[0]

		// Cleared before the topic is read so an edit made while the
		// store is in flight marks the mirror again.
		if err := e.store.SetSyncEnabled(ctx, mirror.ID, false); err != nil {
			return pushed, err
		}

		topic, err := e.pushTopic(ctx, prov, mapper, mirror, remote)
		if err != nil {
			if restoreErr := e.store.SetSyncEnabled(ctx, mirror.ID, true); restoreErr != nil {
				log.WithError(restoreErr).WithField("uid", mirror.UID).Error("Failed to keep change pending")
			}
			return pushed, err
		}
		log.WithFields(logrus.Fields{"uid": mirror.UID, "topic": topic.ID}).Debug("Pushed local changes")
		pushed++
	}
	return pushed, nil
}

// pushTopic stores the flags and labels derived from the mirror's topic
// against the remote values fetched just before.
func (e *Engine) pushTopic(
	ctx context.Context,
	prov provider.Provider,
	mapper Mapper,
	mirror model.IncomingMessage,
	remote model.RemoteMessage,
) (*model.Topic, error) {
	topic, err := e.store.GetTopic(ctx, mirror.TopicID)
	if err != nil {
		return nil, fmt.Errorf("loading topic of UID %d: %w", mirror.UID, err)
	}

	flags := mapper.OutboundFlags(topic.Tags)
	if err := prov.Store(ctx, mirror.UID, provider.FieldFlags, remote.Flags, flags); err != nil {
		return nil, fmt.Errorf("storing flags of UID %d: %w", mirror.UID, err)
	}
	labels := mapper.OutboundLabels(topic)
	if err := prov.Store(ctx, mirror.UID, provider.FieldLabels, remote.Labels, labels); err != nil {
		return nil, fmt.Errorf("storing labels of UID %d: %w", mirror.UID, err)
	}
	return topic, nil
}
