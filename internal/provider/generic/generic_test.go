package generic

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
)

func newTestProvider() *Provider {
	return New(model.Mailbox{ID: "support", Name: "INBOX", Host: "imap.example.com", Port: 993, TLS: true}, "secret")
}

func TestToTag(t *testing.T) {
	p := newTestProvider()

	require.Equal(t, "seen", p.ToTag(`\Seen`))
	require.Equal(t, "flagged", p.ToTag(`\flagged`))
	require.Empty(t, p.ToTag(`\Recent`))
	require.Empty(t, p.ToTag(`\Deleted`))
	require.Empty(t, p.ToTag("INBOX"))
	require.Empty(t, p.ToTag(`\Inbox`))
	require.Equal(t, "customer-support", p.ToTag("Customer Support"))
	require.Equal(t, "urgent", p.ToTag("$Urgent"))
}

func TestTagMapping(t *testing.T) {
	p := newTestProvider()

	require.Equal(t, `\Seen`, p.TagToFlag("seen"))
	require.Empty(t, p.TagToFlag("work"))
	require.Empty(t, p.TagToLabel("work"))
	require.Empty(t, p.TagToLabel("seen"))
}

func TestSearchRange(t *testing.T) {
	set := searchRange(provider.UIDRange{From: 42})
	require.Equal(t, imap.UIDSet{imap.UIDRange{Start: 42, Stop: 0}}, set)

	set = searchRange(provider.UIDRange{To: 9})
	require.Equal(t, imap.UIDSet{imap.UIDRange{Start: 1, Stop: 9}}, set)
}

func TestOperationsRequireConnection(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	_, err := p.OpenMailbox(ctx, "INBOX", false)
	require.ErrorIs(t, err, provider.ErrNotConnected)

	_, err = p.UIDs(ctx, provider.All)
	require.ErrorIs(t, err, provider.ErrNotConnected)

	_, err = p.Fetch(ctx, []uint32{1}, provider.FieldFlags)
	require.ErrorIs(t, err, provider.ErrNotConnected)

	err = p.Store(ctx, 1, provider.FieldFlags, nil, []string{`\Seen`})
	require.ErrorIs(t, err, provider.ErrNotConnected)

	require.NoError(t, p.Disconnect())
}

const (
	serverUser     = "support@example.com"
	serverPassword = "secret"
)

// startServer runs an in-memory IMAP server holding INBOX and the given
// extra mailboxes.
func startServer(t *testing.T, mailboxes ...string) string {
	t.Helper()

	user := imapmemserver.NewUser(serverUser, serverPassword)
	for _, name := range append([]string{"INBOX"}, mailboxes...) {
		require.NoError(t, user.Create(name, nil))
	}
	mem := imapmemserver.New()
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return ln.Addr().String()
}

// connect returns a provider logged in to the server at addr.
func connect(t *testing.T, addr, mailbox string) *Provider {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	p := New(model.Mailbox{
		ID:       "support",
		Name:     mailbox,
		Host:     host,
		Port:     port,
		Username: serverUser,
	}, serverPassword)
	p.dial = func(addr string) (*imapclient.Client, error) {
		return imapclient.DialInsecure(addr, nil)
	}

	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Disconnect() })
	return p
}

func testMessage(n int) []byte {
	return []byte(fmt.Sprintf("From: Alice <alice@example.com>\r\n"+
		"To: support@example.com\r\n"+
		"Subject: Request %d\r\n"+
		"Message-ID: <%d@example.com>\r\n"+
		"Content-Type: text/plain\r\n\r\n"+
		"Body %d.\r\n", n, n, n))
}

func appendMessage(t *testing.T, p *Provider, mailbox string, raw []byte, flags ...imap.Flag) {
	t.Helper()

	cmd := p.Client().Append(mailbox, int64(len(raw)), &imap.AppendOptions{Flags: flags})
	_, err := cmd.Write(raw)
	require.NoError(t, err)
	require.NoError(t, cmd.Close())
	_, err = cmd.Wait()
	require.NoError(t, err)
}

// lowered lower-cases flags; servers may canonicalize their case.
func lowered(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, strings.ToLower(f))
	}
	return out
}

func mailboxNames(t *testing.T, p *Provider) []string {
	t.Helper()

	list, err := p.Client().List("", "*", nil).Collect()
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, data := range list {
		names = append(names, data.Mailbox)
	}
	return names
}

func TestUIDsFromServer(t *testing.T) {
	p := connect(t, startServer(t), "INBOX")
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		appendMessage(t, p, "INBOX", testMessage(i))
	}

	status, err := p.OpenMailbox(ctx, "INBOX", false)
	require.NoError(t, err)
	require.NotZero(t, status.UIDValidity)
	require.Equal(t, uint32(3), status.Messages)

	uids, err := p.UIDs(ctx, provider.All)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, uids)

	uids, err = p.UIDs(ctx, provider.UIDRange{From: 2})
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 3}, uids)

	uids, err = p.UIDs(ctx, provider.UIDRange{To: 2})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, uids)

	// "4:*" matches UID 3 on the wire.
	uids, err = p.UIDs(ctx, provider.UIDRange{From: 4})
	require.NoError(t, err)
	require.Empty(t, uids)
}

func TestFetchFromServer(t *testing.T) {
	p := connect(t, startServer(t, "Work"), "INBOX")
	ctx := context.Background()
	appendMessage(t, p, "INBOX", testMessage(1), imap.FlagSeen)
	appendMessage(t, p, "INBOX", testMessage(2))

	_, err := p.OpenMailbox(ctx, "INBOX", false)
	require.NoError(t, err)

	all := provider.FieldUID | provider.FieldFlags | provider.FieldLabels | provider.FieldBody
	msgs, err := p.Fetch(ctx, []uint32{2, 1}, all)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Equal(t, uint32(1), msgs[0].UID)
	require.Equal(t, "1@example.com", msgs[0].MessageID)
	require.Equal(t, []string{`\seen`}, lowered(msgs[0].Flags))
	require.Equal(t, []string{provider.LabelInboxName}, msgs[0].Labels)
	require.Equal(t, testMessage(1), msgs[0].Body)

	require.Equal(t, uint32(2), msgs[1].UID)
	require.Empty(t, msgs[1].Flags)

	// Body fetches peek: the unread message stays unread.
	msgs, err = p.Fetch(ctx, []uint32{2}, provider.FieldFlags)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Empty(t, msgs[0].Flags)
	require.Nil(t, msgs[0].Labels)
	require.Nil(t, msgs[0].Body)

	// Any synchronized folder reports inbox membership for its messages.
	appendMessage(t, p, "Work", testMessage(3))
	_, err = p.OpenMailbox(ctx, "Work", false)
	require.NoError(t, err)
	msgs, err = p.Fetch(ctx, []uint32{1}, provider.FieldLabels)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, []string{provider.LabelInboxName}, msgs[0].Labels)
}

func TestStoreFlagsKeepsUnmanagedFlags(t *testing.T) {
	p := connect(t, startServer(t), "INBOX")
	ctx := context.Background()
	appendMessage(t, p, "INBOX", testMessage(1), imap.FlagSeen, "$Custom")

	_, err := p.OpenMailbox(ctx, "INBOX", true)
	require.NoError(t, err)

	msgs, err := p.Fetch(ctx, []uint32{1}, provider.FieldFlags)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	err = p.Store(ctx, 1, provider.FieldFlags, msgs[0].Flags, []string{`\Flagged`})
	require.NoError(t, err)

	msgs, err = p.Fetch(ctx, []uint32{1}, provider.FieldFlags)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"$custom", `\flagged`}, lowered(msgs[0].Flags))
}

func TestArchiveCreatesFolder(t *testing.T) {
	p := connect(t, startServer(t), "INBOX")
	ctx := context.Background()
	appendMessage(t, p, "INBOX", testMessage(1))

	_, err := p.OpenMailbox(ctx, "INBOX", true)
	require.NoError(t, err)
	require.NoError(t, p.Store(ctx, 1, provider.FieldLabels, []string{provider.LabelInboxName}, nil))

	uids, err := p.UIDs(ctx, provider.All)
	require.NoError(t, err)
	require.Empty(t, uids)
	require.ElementsMatch(t, []string{"INBOX", "Archive"}, mailboxNames(t, p))

	status, err := p.OpenMailbox(ctx, "Archive", false)
	require.NoError(t, err)
	require.Equal(t, uint32(1), status.Messages)

	msgs, err := p.Fetch(ctx, []uint32{1}, provider.FieldFlags)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotContains(t, lowered(msgs[0].Flags), `\deleted`)
}

func TestArchiveUsesExistingFolder(t *testing.T) {
	p := connect(t, startServer(t, "Archives"), "INBOX")
	ctx := context.Background()
	appendMessage(t, p, "INBOX", testMessage(1))
	appendMessage(t, p, "INBOX", testMessage(2))

	_, err := p.OpenMailbox(ctx, "INBOX", true)
	require.NoError(t, err)
	require.NoError(t, p.Store(ctx, 2, provider.FieldLabels, []string{provider.LabelInboxName}, nil))

	// Keeping inbox membership moves nothing.
	require.NoError(t, p.Store(ctx, 1, provider.FieldLabels, []string{provider.LabelInboxName}, []string{provider.LabelInbox}))

	uids, err := p.UIDs(ctx, provider.All)
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, uids)
	require.ElementsMatch(t, []string{"INBOX", "Archives"}, mailboxNames(t, p))

	status, err := p.OpenMailbox(ctx, "Archives", false)
	require.NoError(t, err)
	require.Equal(t, uint32(1), status.Messages)
}

func TestPickArchive(t *testing.T) {
	list := []*imap.ListData{
		{Mailbox: "INBOX"},
		{Mailbox: "Archive", Attrs: []imap.MailboxAttr{imap.MailboxAttrNoSelect}},
		{Mailbox: "archives"},
		{Mailbox: "Old", Attrs: []imap.MailboxAttr{imap.MailboxAttrArchive}},
	}
	require.Equal(t, "Old", pickArchive(list, "INBOX"))
	require.Equal(t, "archives", pickArchive(list[:3], "INBOX"))
	require.Empty(t, pickArchive(list[:3], "Archives"))
	require.Empty(t, pickArchive(list[:1], "INBOX"))
}
