// Package gmail implements provider.Provider for Gmail. UIDs, flags and
// bodies travel over IMAP; labels are read and written through the Gmail
// API because IMAP exposes them only via a vendor extension.
package gmail

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
	"github.com/nhle/mailsync/internal/provider/generic"
)

// DefaultHost is the Gmail IMAP endpoint.
const DefaultHost = "imap.gmail.com"

// LabelImportant is the IMAP-style name of Gmail's IMPORTANT label.
const LabelImportant = `\Important`

// systemLabels maps the Gmail system label ids that participate in sync
// to their IMAP-style names. Others (UNREAD, STARRED, SENT, CATEGORY_*)
// are covered by flags or carry no topic state.
var systemLabels = map[string]string{
	"INBOX":     provider.LabelInbox,
	"IMPORTANT": LabelImportant,
}

// Provider talks to one Gmail mailbox.
type Provider struct {
	*generic.Provider

	api LabelService
	log *logrus.Entry

	nameByID  map[string]string
	idByName  map[string]string
	nameByTag map[string]string

	messageIDs map[uint32]string
	gmailIDs   map[string]string
}

// New creates a Gmail provider. The refresh token authorizes label
// access through the OAuth client in cfg.
func New(
	ctx context.Context,
	mb model.Mailbox,
	password string,
	cfg model.GmailConfig,
	refreshToken string,
) (*Provider, error) {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailModifyScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating Gmail service: %w", err)
	}

	return NewWithLabels(mb, password, &apiLabels{svc: svc}), nil
}

// NewWithLabels creates a Gmail provider using api for label access.
func NewWithLabels(mb model.Mailbox, password string, api LabelService) *Provider {
	if mb.Host == "" {
		mb.Host = DefaultHost
	}
	if mb.Port == 0 {
		mb.Port = 993
		mb.TLS = true
	}

	return &Provider{
		Provider:   generic.New(mb, password),
		api:        api,
		log:        logrus.WithFields(logrus.Fields{"pkg": "provider/gmail", "mailbox": mb.ID}),
		nameByID:   map[string]string{},
		idByName:   map[string]string{},
		nameByTag:  map[string]string{},
		messageIDs: map[uint32]string{},
		gmailIDs:   map[string]string{},
	}
}

// Connect opens the IMAP connection and loads the account's labels.
func (p *Provider) Connect(ctx context.Context) error {
	if err := p.Provider.Connect(ctx); err != nil {
		return err
	}
	if err := p.loadLabels(ctx); err != nil {
		_ = p.Provider.Disconnect()
		return err
	}
	return nil
}

// Disconnect closes the IMAP connection and drops per-connection caches.
func (p *Provider) Disconnect() error {
	p.messageIDs = map[uint32]string{}
	p.gmailIDs = map[string]string{}
	return p.Provider.Disconnect()
}

func (p *Provider) loadLabels(ctx context.Context) error {
	labels, err := p.api.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("listing Gmail labels: %w", err)
	}
	for _, l := range labels {
		if l.Type != "user" {
			continue
		}
		p.rememberLabel(l.Id, l.Name)
	}
	return nil
}

func (p *Provider) rememberLabel(id, name string) {
	p.nameByID[id] = name
	p.idByName[name] = id
	p.nameByTag[p.ToTag(name)] = name
}

// lookupBatch is how many Message-IDs one API search resolves.
const lookupBatch = 25

// Fetch fetches over IMAP and, when labels are requested, resolves the
// messages through the API by Message-ID: one search per lookupBatch
// messages and one metadata read per message.
func (p *Provider) Fetch(
	ctx context.Context, uids []uint32, fields provider.Field,
) ([]model.RemoteMessage, error) {
	messages, err := p.Provider.Fetch(ctx, uids, fields&^provider.FieldLabels)
	if err != nil {
		return messages, err
	}

	messageIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		p.messageIDs[m.UID] = m.MessageID
		messageIDs = append(messageIDs, m.MessageID)
	}
	if !fields.Has(provider.FieldLabels) {
		return messages, nil
	}

	labels, err := p.remoteLabels(ctx, messageIDs)
	if err != nil {
		return messages, fmt.Errorf("fetching labels: %w", err)
	}
	for i := range messages {
		messages[i].Labels = labels[messages[i].MessageID]
	}
	return messages, nil
}

// remoteLabels returns the IMAP-style label names of each message, keyed
// by Message-ID. A message the API cannot locate is reported as present
// in the inbox, which is what the IMAP view of the synchronized mailbox
// shows.
func (p *Provider) remoteLabels(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	loaded, err := p.resolve(ctx, messageIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(messageIDs))
	for _, messageID := range messageIDs {
		if _, ok := out[messageID]; ok {
			continue
		}
		gid := p.gmailIDs[messageID]
		if gid == "" {
			p.log.WithField("message_id", messageID).Debug("Message not found through API")
			out[messageID] = []string{provider.LabelInboxName}
			continue
		}

		ids, ok := loaded[gid]
		if !ok {
			if _, ids, err = p.api.MessageMeta(ctx, gid); err != nil {
				return nil, fmt.Errorf("loading message %s: %w", messageID, err)
			}
		}
		out[messageID] = p.labelNames(ids)
	}
	return out, nil
}

// resolve looks up the Gmail ids of Message-IDs not seen on this
// connection. It returns the label ids read along the way, keyed by
// Gmail id.
func (p *Provider) resolve(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	var missing []string
	queued := make(map[string]bool)
	for _, messageID := range messageIDs {
		if _, ok := p.gmailIDs[messageID]; ok || messageID == "" || queued[messageID] {
			continue
		}
		queued[messageID] = true
		missing = append(missing, messageID)
	}

	loaded := make(map[string][]string)
	for batch := range slices.Chunk(missing, lookupBatch) {
		gids, err := p.api.FindMessages(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("looking up %d messages: %w", len(batch), err)
		}
		for _, gid := range gids {
			messageID, ids, err := p.api.MessageMeta(ctx, gid)
			if err != nil {
				return nil, fmt.Errorf("loading message %s: %w", gid, err)
			}
			loaded[gid] = ids
			if queued[messageID] && p.gmailIDs[messageID] == "" {
				p.gmailIDs[messageID] = gid
			}
		}
		for _, messageID := range batch {
			if _, ok := p.gmailIDs[messageID]; !ok {
				p.gmailIDs[messageID] = ""
			}
		}
	}
	return loaded, nil
}

// labelNames converts Gmail label ids into IMAP-style names.
func (p *Provider) labelNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := systemLabels[id]; ok {
			names = append(names, name)
			continue
		}
		if name, ok := p.nameByID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// labelIDs converts IMAP-style label names into Gmail label ids. Unknown
// user labels are created when create is set and skipped otherwise.
func (p *Provider) labelIDs(ctx context.Context, names []string, create bool) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := systemLabelID(name); ok {
			ids = append(ids, id)
			continue
		}
		if id, ok := p.labelID(name); ok {
			ids = append(ids, id)
			continue
		}
		if !create {
			continue
		}
		label, err := p.api.CreateLabel(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("creating Gmail label %q: %w", name, err)
		}
		p.rememberLabel(label.Id, label.Name)
		ids = append(ids, label.Id)
	}
	return ids, nil
}

// labelID finds a user label by name. Gmail label names are unique
// regardless of case.
func (p *Provider) labelID(name string) (string, bool) {
	if id, ok := p.idByName[name]; ok {
		return id, true
	}
	for n, id := range p.idByName {
		if strings.EqualFold(n, name) {
			return id, true
		}
	}
	return "", false
}

func systemLabelID(name string) (string, bool) {
	if provider.IsInboxName(name) {
		return "INBOX", true
	}
	for id, n := range systemLabels {
		if strings.EqualFold(n, name) {
			return id, true
		}
	}
	return "", false
}

func (p *Provider) gmailID(ctx context.Context, messageID string) (string, error) {
	if _, err := p.resolve(ctx, []string{messageID}); err != nil {
		return "", err
	}
	return p.gmailIDs[messageID], nil
}

// Store applies flag deltas over IMAP and label deltas through the API.
func (p *Provider) Store(
	ctx context.Context, uid uint32, field provider.Field, oldValues, newValues []string,
) error {
	if field != provider.FieldLabels {
		return p.Provider.Store(ctx, uid, field, oldValues, newValues)
	}

	messageID, ok := p.messageIDs[uid]
	if !ok {
		if _, err := p.Fetch(ctx, []uint32{uid}, provider.FieldUID); err != nil {
			return err
		}
		messageID = p.messageIDs[uid]
	}
	return p.storeLabels(ctx, uid, messageID, oldValues, newValues)
}

func (p *Provider) storeLabels(
	ctx context.Context, uid uint32, messageID string, oldValues, newValues []string,
) error {
	gid, err := p.gmailID(ctx, messageID)
	if err != nil {
		return err
	}
	if gid == "" {
		p.log.WithField("uid", uid).Warn("Cannot store labels: message not found through API")
		return nil
	}

	add, remove := provider.Delta(oldValues, newValues)
	addIDs, err := p.labelIDs(ctx, add, true)
	if err != nil {
		return err
	}
	removeIDs, err := p.labelIDs(ctx, remove, false)
	if err != nil {
		return err
	}
	if len(addIDs) == 0 && len(removeIDs) == 0 {
		return nil
	}

	if err := p.api.Modify(ctx, gid, addIDs, removeIDs); err != nil {
		return fmt.Errorf("modifying labels of UID %d: %w", uid, err)
	}
	return nil
}

// ToTag maps a flag, label or mailbox name to a tag.
func (p *Provider) ToTag(name string) string {
	if tag, ok := provider.FlagTag(name); ok {
		return tag
	}
	if strings.EqualFold(name, LabelImportant) {
		return "important"
	}
	if provider.IsSystemName(name) || provider.IsInboxName(name) {
		return ""
	}

	name = strings.TrimPrefix(name, "[Gmail]/")
	name = strings.TrimPrefix(name, "[Google Mail]/")

	switch tag := provider.CleanTag(name); tag {
	case "all-mail", "inbox", "sent":
		return ""
	default:
		return tag
	}
}

// TagToFlag maps a tag to a system flag.
func (p *Provider) TagToFlag(tag string) string {
	return provider.TagFlag(provider.CleanTag(tag))
}

// TagToLabel maps a tag to the name of an existing label with that tag,
// or to the tag itself, which becomes a new label on store.
func (p *Provider) TagToLabel(tag string) string {
	switch tag = provider.CleanTag(tag); tag {
	case "":
		return ""
	case "important":
		return LabelImportant
	}
	if provider.TagFlag(tag) != "" {
		return ""
	}
	if name, ok := p.nameByTag[tag]; ok {
		return name
	}
	return tag
}
