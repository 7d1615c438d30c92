// Package notify publishes synchronization events to NATS JetStream.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/sync"
)

// DefaultSubjectPrefix roots every subject when none is configured.
const DefaultSubjectPrefix = "mailsync"

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Publisher announces finished passes on
// "<prefix>.mailbox.<mailbox id>.pass".
type Publisher struct {
	nc     *nats.Conn
	js     jetStream
	prefix string
	log    *logrus.Entry
}

// New connects to the configured NATS server. It returns nil without an
// error when no URL is configured.
func New(cfg model.NATSConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("mailsync"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("getting JetStream context: %w", err)
	}

	p := newPublisher(js, cfg.SubjectPrefix)
	p.nc = nc
	return p, nil
}

func newPublisher(js jetStream, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{
		js:     js,
		prefix: prefix,
		log:    logrus.WithField("pkg", "notify"),
	}
}

// StreamName is the stream holding the publisher's subjects.
func (p *Publisher) StreamName() string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(p.prefix))
}

// EnsureStream creates the stream for the publisher's subjects if it
// does not exist yet.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	name := p.StreamName()
	if info, err := p.js.StreamInfo(name, nats.Context(ctx)); err == nil && info != nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   []string{p.prefix + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     7 * 24 * time.Hour,
	}, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("creating stream %s: %w", name, err)
	}
	return nil
}

// Subject returns the subject pass events of a mailbox are published on.
func (p *Publisher) Subject(mailboxID string) string {
	return p.prefix + ".mailbox." + subjectToken(mailboxID) + ".pass"
}

// PublishPass publishes res as JSON. Publishing the same pass twice is
// deduplicated by the server.
func (p *Publisher) PublishPass(ctx context.Context, res *sync.PassResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding pass of %s: %w", res.MailboxID, err)
	}

	subject := p.Subject(res.MailboxID)
	msgID := fmt.Sprintf("%s-%d", res.MailboxID, res.StartedAt.UnixNano())
	if _, err := p.js.Publish(subject, payload, nats.MsgId(msgID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.log.WithFields(logrus.Fields{
		"subject": subject,
		"state":   res.State.String(),
	}).Debug("Published pass")
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

var _ sync.Publisher = (*Publisher)(nil)
