package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
)

// ErrPassRunning is returned when a pass is requested for a mailbox that
// already has one in progress.
var ErrPassRunning = errors.New("pass already running")

// ErrUnknownMailbox is returned for a mailbox the poller does not manage.
var ErrUnknownMailbox = errors.New("unknown mailbox")

// SyncState represents the current state of a mailbox in the poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	}
	return fmt.Sprintf("SyncState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SyncStatus holds the poller state for a single mailbox.
type SyncStatus struct {
	MailboxID  string      `json:"mailbox_id"`
	State      SyncState   `json:"state"`
	LastSync   time.Time   `json:"last_sync"`
	Error      string      `json:"error,omitempty"`
	AuthFailed bool        `json:"auth_failed"`
	LastResult *PassResult `json:"last_result,omitempty"`
}

// PassRunner runs one pass over a mailbox. *Engine satisfies it.
type PassRunner interface {
	RunPass(ctx context.Context, mb model.Mailbox) (*PassResult, error)
}

// MailboxStore loads mailboxes with their cursor and records pass outcomes.
type MailboxStore interface {
	GetMailbox(ctx context.Context, id string) (*model.Mailbox, error)
	RecordPass(ctx context.Context, mailboxID string, at time.Time, errMsg string) error
}

// Publisher announces finished passes.
type Publisher interface {
	PublishPass(ctx context.Context, res *PassResult) error
}

// Schedule is how often a mailbox is polled.
type Schedule struct {
	MailboxID string
	Interval  time.Duration
}

// defaultInterval applies to schedules without an interval.
const defaultInterval = 5 * time.Minute

// Poller runs passes on a schedule. It allows at most one pass per
// mailbox at a time and bounds how many mailboxes sync concurrently.
type Poller struct {
	runner    PassRunner
	store     MailboxStore
	publisher Publisher
	schedules []Schedule
	sem       *semaphore.Weighted
	limit     int

	statuses  map[string]*SyncStatus
	active    map[string]bool
	triggerCh map[string]chan struct{}
	mu        gosync.Mutex

	cancel context.CancelFunc
	done   chan struct{}

	log *logrus.Entry
}

// NewPoller creates a poller for the given schedules. concurrency bounds
// simultaneous passes; publisher may be nil.
func NewPoller(
	runner PassRunner,
	st MailboxStore,
	publisher Publisher,
	schedules []Schedule,
	concurrency int,
) *Poller {
	if concurrency < 1 {
		concurrency = 1
	}

	p := &Poller{
		runner:    runner,
		store:     st,
		publisher: publisher,
		schedules: schedules,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		limit:     concurrency,
		statuses:  make(map[string]*SyncStatus, len(schedules)),
		active:    make(map[string]bool, len(schedules)),
		triggerCh: make(map[string]chan struct{}, len(schedules)),
		log:       logrus.WithField("pkg", "sync/poller"),
	}
	for _, s := range schedules {
		p.statuses[s.MailboxID] = &SyncStatus{MailboxID: s.MailboxID, State: SyncIdle}
		p.triggerCh[s.MailboxID] = make(chan struct{}, 1)
	}
	return p
}

// Run polls every scheduled mailbox until ctx is cancelled. Each mailbox
// is synchronized once immediately, then on its interval or when
// triggered.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range p.schedules {
		g.Go(func() error {
			p.pollMailbox(ctx, s)
			return nil
		})
	}
	return g.Wait()
}

// Start runs the poller in the background until Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		_ = p.Run(ctx)
	}()
}

// Stop halts background polling and waits for running passes to end.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger requests an immediate pass of a mailbox from the background
// loop. Repeated triggers before the pass starts collapse into one.
func (p *Poller) Trigger(mailboxID string) error {
	ch, ok := p.triggerCh[mailboxID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMailbox, mailboxID)
	}
	select {
	case ch <- struct{}{}:
	default:
		// A trigger is already pending.
	}
	return nil
}

// SyncAll runs one pass over every scheduled mailbox, bounded by the
// poller's concurrency, and returns the errors of failed passes joined.
// Mailboxes with a pass in progress are skipped.
func (p *Poller) SyncAll(ctx context.Context) error {
	var (
		mu   gosync.Mutex
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(p.limit)
	for _, s := range p.schedules {
		g.Go(func() error {
			_, err := p.RunOnce(ctx, s.MailboxID)
			if err != nil && !errors.Is(err, ErrPassRunning) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.MailboxID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// RunOnce runs a single pass over a mailbox, loading its current cursor
// first. It returns ErrPassRunning if a pass for the mailbox is already
// in progress.
func (p *Poller) RunOnce(ctx context.Context, mailboxID string) (*PassResult, error) {
	if !p.acquire(mailboxID) {
		return nil, ErrPassRunning
	}
	defer p.release(mailboxID)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	p.setStatus(mailboxID, func(s *SyncStatus) { s.State = SyncRunning })

	res, err := p.runPass(ctx, mailboxID)

	now := time.Now()
	p.setStatus(mailboxID, func(s *SyncStatus) {
		s.LastResult = res
		if err != nil {
			s.State = SyncError
			s.Error = err.Error()
			s.AuthFailed = provider.IsAuthError(err)
			return
		}
		s.State = SyncIdle
		s.Error = ""
		s.AuthFailed = false
		s.LastSync = now
	})

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if recErr := p.store.RecordPass(ctx, mailboxID, now, errMsg); recErr != nil {
		p.log.WithError(recErr).WithField("mailbox", mailboxID).Warn("Failed to record pass")
	}

	if p.publisher != nil && res != nil {
		if pubErr := p.publisher.PublishPass(ctx, res); pubErr != nil {
			p.log.WithError(pubErr).WithField("mailbox", mailboxID).Warn("Failed to publish pass")
		}
	}

	return res, err
}

func (p *Poller) runPass(ctx context.Context, mailboxID string) (*PassResult, error) {
	mb, err := p.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	return p.runner.RunPass(ctx, *mb)
}

// Statuses returns the current status of every scheduled mailbox,
// ordered by mailbox id.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	slices.SortFunc(statuses, func(a, b SyncStatus) int {
		switch {
		case a.MailboxID < b.MailboxID:
			return -1
		case a.MailboxID > b.MailboxID:
			return 1
		}
		return 0
	})
	return statuses
}

// pollMailbox runs the polling loop for a single mailbox.
func (p *Poller) pollMailbox(ctx context.Context, s Schedule) {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := p.log.WithField("mailbox", s.MailboxID)
	poll := func() {
		if _, err := p.RunOnce(ctx, s.MailboxID); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Scheduled pass failed")
		}
	}

	// Do an initial pass immediately
	poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		case <-p.triggerCh[s.MailboxID]:
			poll()
		}
	}
}

func (p *Poller) acquire(mailboxID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active[mailboxID] {
		return false
	}
	p.active[mailboxID] = true
	return true
}

func (p *Poller) release(mailboxID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, mailboxID)
}

// setStatus updates the status of a mailbox, creating it for mailboxes
// synchronized on demand.
func (p *Poller) setStatus(mailboxID string, update func(*SyncStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[mailboxID]
	if !ok {
		status = &SyncStatus{MailboxID: mailboxID}
		p.statuses[mailboxID] = status
	}
	update(status)
}
