// Package generic implements provider.Provider for any standards-compliant
// IMAP server using go-imap v2.
//
// Plain IMAP has no labels. A message present in the synchronized mailbox
// is reported with the INBOX label, whatever the folder is called, so
// presence means "not archived". Removing that label moves the message to
// an archive folder, which is created when the server has none.
package generic

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
)

// ArchiveFolders are the mailbox names looked for, in order, when no
// mailbox carries the \Archive attribute. The first one is created when
// none exists.
var ArchiveFolders = []string{
	"Archive", "Archives", "INBOX.Archive", "[Gmail]/All Mail",
}

// Provider talks to one mailbox on a generic IMAP server.
type Provider struct {
	mailbox  model.Mailbox
	password string
	log      *logrus.Entry

	// dial opens the connection. Nil picks TLS or STARTTLS from the
	// mailbox settings.
	dial func(addr string) (*imapclient.Client, error)

	client   *imapclient.Client
	selected string
	archive  string
}

// New creates a provider for mb authenticating with password. No
// connection is made until Connect.
func New(mb model.Mailbox, password string) *Provider {
	return &Provider{
		mailbox:  mb,
		password: password,
		log: logrus.WithFields(logrus.Fields{
			"pkg":     "provider/generic",
			"mailbox": mb.ID,
		}),
	}
}

// Connect establishes a connection to the IMAP server and authenticates.
func (p *Provider) Connect(_ context.Context) error {
	if p.client != nil {
		return nil
	}

	addr := net.JoinHostPort(p.mailbox.Host, strconv.Itoa(p.mailbox.Port))

	var client *imapclient.Client
	var err error

	switch {
	case p.dial != nil:
		client, err = p.dial(addr)
	case p.mailbox.TLS:
		client, err = imapclient.DialTLS(addr, nil)
	default:
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(p.mailbox.Username, p.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return &provider.AuthError{
			MailboxID: p.mailbox.ID,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				p.mailbox.Username, err,
			),
		}
	}

	p.log.WithField("addr", addr).Debug("Connected")
	p.client = client
	return nil
}

// Disconnect logs out and closes the connection. It is safe to call on a
// provider that never connected.
func (p *Provider) Disconnect() error {
	if p.client == nil {
		return nil
	}
	client := p.client
	p.client = nil
	p.selected = ""
	p.archive = ""

	if err := client.Logout().Wait(); err != nil {
		p.log.WithError(err).Debug("Logout failed")
	}
	return client.Close()
}

// Client returns the underlying IMAP client, or nil before Connect.
func (p *Provider) Client() *imapclient.Client {
	return p.client
}

// OpenMailbox selects the named mailbox.
func (p *Provider) OpenMailbox(
	_ context.Context, name string, writable bool,
) (provider.Status, error) {
	if p.client == nil {
		return provider.Status{}, provider.ErrNotConnected
	}

	data, err := p.client.Select(name, &imap.SelectOptions{ReadOnly: !writable}).Wait()
	if err != nil {
		return provider.Status{}, fmt.Errorf("selecting %s: %w", name, err)
	}
	p.selected = name

	return provider.Status{
		UIDValidity: data.UIDValidity,
		Messages:    data.NumMessages,
		UIDNext:     uint32(data.UIDNext),
	}, nil
}

// UIDs lists the UIDs of the selected mailbox within r, ascending.
func (p *Provider) UIDs(_ context.Context, r provider.UIDRange) ([]uint32, error) {
	if p.client == nil {
		return nil, provider.ErrNotConnected
	}

	criteria := &imap.SearchCriteria{}
	if r != provider.All {
		criteria.UID = []imap.UIDSet{searchRange(r)}
	}

	data, err := p.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", p.selected, err)
	}

	// "n:*" always matches the highest UID, even when it is below n.
	var uids []uint32
	for _, uid := range data.AllUIDs() {
		if r.Contains(uint32(uid)) {
			uids = append(uids, uint32(uid))
		}
	}
	slices.Sort(uids)
	return uids, nil
}

// searchRange converts r into a UID set. A zero Stop means "*".
func searchRange(r provider.UIDRange) imap.UIDSet {
	start := r.From
	if start == 0 {
		start = 1
	}
	return imap.UIDSet{imap.UIDRange{Start: imap.UID(start), Stop: imap.UID(r.To)}}
}

// Fetch returns the requested fields of the given messages. The message
// envelope is always fetched so MessageID is populated.
func (p *Provider) Fetch(
	_ context.Context, uids []uint32, fields provider.Field,
) ([]model.RemoteMessage, error) {
	if p.client == nil {
		return nil, provider.ErrNotConnected
	}
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		Flags:    fields.Has(provider.FieldFlags),
	}
	if fields.Has(provider.FieldBody) {
		fetchOpts.BodySection = []*imap.FetchItemBodySection{bodySection}
	}

	fetchCmd := p.client.Fetch(uidSet(uids), fetchOpts)
	defer fetchCmd.Close()

	var messages []model.RemoteMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			return messages, fmt.Errorf("collecting message data: %w", err)
		}

		rm := model.RemoteMessage{UID: uint32(buf.UID)}
		if buf.Envelope != nil {
			rm.MessageID = buf.Envelope.MessageID
		}
		if fields.Has(provider.FieldFlags) {
			rm.Flags = make([]string, 0, len(buf.Flags))
			for _, flag := range buf.Flags {
				rm.Flags = append(rm.Flags, string(flag))
			}
		}
		if fields.Has(provider.FieldLabels) {
			rm.Labels = []string{provider.LabelInboxName}
		}
		if fields.Has(provider.FieldBody) {
			rm.Body = buf.FindBodySection(bodySection)
		}
		messages = append(messages, rm)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching from %s: %w", p.selected, err)
	}

	slices.SortFunc(messages, func(a, b model.RemoteMessage) int {
		return cmp.Compare(a.UID, b.UID)
	})
	return messages, nil
}

// Store applies the flag or label delta to one message.
//
// Only flags that map to a tag are ever removed, so server-side markers
// such as \Deleted or custom keywords survive. A label delta is reduced
// to inbox membership: losing the inbox label archives the message.
func (p *Provider) Store(
	ctx context.Context, uid uint32, field provider.Field, oldValues, newValues []string,
) error {
	if p.client == nil {
		return provider.ErrNotConnected
	}

	switch field {
	case provider.FieldFlags:
		add, remove := provider.Delta(oldValues, newValues)
		remove = slices.DeleteFunc(remove, func(flag string) bool {
			_, managed := provider.FlagTag(flag)
			return !managed
		})
		if err := p.storeFlags(uid, imap.StoreFlagsAdd, add); err != nil {
			return err
		}
		return p.storeFlags(uid, imap.StoreFlagsDel, remove)

	case provider.FieldLabels:
		if provider.HasInbox(oldValues) && !provider.HasInbox(newValues) {
			return p.MoveToArchive(ctx, uid)
		}
		return nil
	}

	return fmt.Errorf("storing %s: unsupported field", field)
}

func (p *Provider) storeFlags(uid uint32, op imap.StoreFlagsOp, flags []string) error {
	if len(flags) == 0 {
		return nil
	}

	imapFlags := make([]imap.Flag, 0, len(flags))
	for _, f := range flags {
		imapFlags = append(imapFlags, imap.Flag(f))
	}

	storeCmd := p.client.Store(uidSet([]uint32{uid}), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  imapFlags,
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("storing flags on UID %d: %w", uid, err)
	}
	return nil
}

// MoveToArchive moves the message out of the selected mailbox into the
// archive folder.
func (p *Provider) MoveToArchive(_ context.Context, uid uint32) error {
	if p.client == nil {
		return provider.ErrNotConnected
	}

	folder, err := p.archiveFolder()
	if err != nil {
		return err
	}
	if _, err := p.client.Move(uidSet([]uint32{uid}), folder).Wait(); err != nil {
		return fmt.Errorf("moving UID %d to %s: %w", uid, folder, err)
	}

	p.log.WithFields(logrus.Fields{"uid": uid, "folder": folder}).Debug("Moved to archive")
	return nil
}

// archiveFolder returns the mailbox archived messages move to: one with
// the \Archive attribute, else the first existing entry of
// ArchiveFolders. With neither, the first entry not selected is created.
func (p *Provider) archiveFolder() (string, error) {
	if p.archive != "" {
		return p.archive, nil
	}

	var opts *imap.ListOptions
	if p.client.Caps().Has(imap.CapSpecialUse) {
		opts = &imap.ListOptions{ReturnSpecialUse: true}
	}
	list, err := p.client.List("", "*", opts).Collect()
	if err != nil {
		return "", fmt.Errorf("listing mailboxes: %w", err)
	}

	folder := pickArchive(list, p.selected)
	if folder == "" {
		for _, name := range ArchiveFolders {
			if !strings.EqualFold(name, p.selected) {
				folder = name
				break
			}
		}
		if err := p.client.Create(folder, nil).Wait(); err != nil {
			return "", fmt.Errorf("creating archive folder %s: %w", folder, err)
		}
		p.log.WithField("folder", folder).Info("Created archive folder")
	}

	p.archive = folder
	return folder, nil
}

func pickArchive(list []*imap.ListData, selected string) string {
	usable := func(data *imap.ListData) bool {
		return !strings.EqualFold(data.Mailbox, selected) &&
			!slices.Contains(data.Attrs, imap.MailboxAttrNoSelect)
	}

	for _, data := range list {
		if usable(data) && slices.Contains(data.Attrs, imap.MailboxAttrArchive) {
			return data.Mailbox
		}
	}
	for _, name := range ArchiveFolders {
		for _, data := range list {
			if usable(data) && strings.EqualFold(data.Mailbox, name) {
				return data.Mailbox
			}
		}
	}
	return ""
}

// ToTag maps a flag, label or mailbox name to a tag.
func (p *Provider) ToTag(name string) string {
	if tag, ok := provider.FlagTag(name); ok {
		return tag
	}
	if provider.IsSystemName(name) || provider.IsInboxName(name) {
		return ""
	}
	return provider.CleanTag(name)
}

// TagToFlag maps a tag to a system flag.
func (p *Provider) TagToFlag(tag string) string {
	return provider.TagFlag(provider.CleanTag(tag))
}

// TagToLabel returns "": generic IMAP has no labels besides inbox
// membership, which follows the topic's archived state.
func (p *Provider) TagToLabel(string) string {
	return ""
}

func uidSet(uids []uint32) imap.UIDSet {
	nums := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		nums = append(nums, imap.UID(uid))
	}
	return imap.UIDSetNum(nums...)
}
