package gmail

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
)

type modifyCall struct {
	id          string
	add, remove []string
}

type fakeLabels struct {
	labels    []*gmailapi.Label
	messages  map[string]string
	ids       map[string][]string
	searches  [][]string
	metaReads int
	modified  []modifyCall
	created   []string
}

func (f *fakeLabels) ListLabels(context.Context) ([]*gmailapi.Label, error) {
	return f.labels, nil
}

func (f *fakeLabels) CreateLabel(_ context.Context, name string) (*gmailapi.Label, error) {
	f.created = append(f.created, name)
	label := &gmailapi.Label{Id: "Label_new_" + name, Name: name, Type: "user"}
	f.labels = append(f.labels, label)
	return label, nil
}

func (f *fakeLabels) FindMessages(_ context.Context, messageIDs []string) ([]string, error) {
	f.searches = append(f.searches, messageIDs)
	var gids []string
	for _, id := range messageIDs {
		if gid, ok := f.messages[id]; ok {
			gids = append(gids, gid)
		}
	}
	return gids, nil
}

func (f *fakeLabels) MessageMeta(_ context.Context, gid string) (string, []string, error) {
	f.metaReads++
	ids, ok := f.ids[gid]
	if !ok {
		return "", nil, errors.New("not found")
	}
	for messageID, g := range f.messages {
		if g == gid {
			return messageID, ids, nil
		}
	}
	return "", ids, nil
}

func (f *fakeLabels) Modify(_ context.Context, id string, add, remove []string) error {
	f.modified = append(f.modified, modifyCall{id: id, add: add, remove: remove})
	return nil
}

func newTestProvider(t *testing.T) (*Provider, *fakeLabels) {
	t.Helper()

	api := &fakeLabels{
		labels: []*gmailapi.Label{
			{Id: "INBOX", Name: "INBOX", Type: "system"},
			{Id: "IMPORTANT", Name: "IMPORTANT", Type: "system"},
			{Id: "Label_1", Name: "Work", Type: "user"},
			{Id: "Label_2", Name: "Customer Support", Type: "user"},
		},
		messages: map[string]string{"a@example.com": "g1"},
		ids: map[string][]string{
			"g1": {"INBOX", "UNREAD", "IMPORTANT", "Label_1", "CATEGORY_UPDATES"},
		},
	}
	p := NewWithLabels(model.Mailbox{ID: "gm", Name: "INBOX", Username: "me@example.com"}, "pw", api)
	require.NoError(t, p.loadLabels(context.Background()))
	return p, api
}

func TestNewWithLabelsDefaults(t *testing.T) {
	p := NewWithLabels(model.Mailbox{ID: "gm"}, "", &fakeLabels{})
	require.NotNil(t, p.Provider)
	require.Equal(t, "imap.gmail.com", DefaultHost)
}

func TestRemoteLabels(t *testing.T) {
	p, api := newTestProvider(t)
	ctx := context.Background()
	messageIDs := []string{"a@example.com", "missing@example.com", "a@example.com"}

	labels, err := p.remoteLabels(ctx, messageIDs)
	require.NoError(t, err)
	require.Equal(t, []string{provider.LabelInbox, LabelImportant, "Work"}, labels["a@example.com"])
	require.Equal(t, []string{provider.LabelInboxName}, labels["missing@example.com"])
	require.Equal(t, [][]string{{"a@example.com", "missing@example.com"}}, api.searches)
	require.Equal(t, 1, api.metaReads)

	labels, err = p.remoteLabels(ctx, messageIDs)
	require.NoError(t, err)
	require.Equal(t, []string{provider.LabelInbox, LabelImportant, "Work"}, labels["a@example.com"])
	require.Len(t, api.searches, 1, "gmail id lookups are cached")
	require.Equal(t, 2, api.metaReads)
}

func TestRemoteLabelsBatchesLookups(t *testing.T) {
	p, api := newTestProvider(t)

	var messageIDs []string
	for i := range 60 {
		id := fmt.Sprintf("m%d@example.com", i)
		messageIDs = append(messageIDs, id)
		api.messages[id] = fmt.Sprintf("g-m%d", i)
		api.ids[fmt.Sprintf("g-m%d", i)] = []string{"INBOX"}
	}

	labels, err := p.remoteLabels(context.Background(), messageIDs)
	require.NoError(t, err)
	require.Len(t, labels, 60)
	for _, id := range messageIDs {
		require.Equal(t, []string{provider.LabelInbox}, labels[id])
	}

	require.Len(t, api.searches, 3)
	require.Len(t, api.searches[0], lookupBatch)
	require.Len(t, api.searches[1], lookupBatch)
	require.Len(t, api.searches[2], 10)
	require.Equal(t, 60, api.metaReads)
}

func TestStoreLabels(t *testing.T) {
	p, api := newTestProvider(t)
	ctx := context.Background()

	err := p.storeLabels(ctx, 7, "a@example.com",
		[]string{provider.LabelInbox, "Work"},
		[]string{"Work", "customer-support", "billing"},
	)
	require.NoError(t, err)

	require.Len(t, api.modified, 1)
	call := api.modified[0]
	require.Equal(t, "g1", call.id)
	require.Equal(t, []string{"Label_new_customer-support", "Label_new_billing"}, call.add)
	require.Equal(t, []string{"INBOX"}, call.remove)
	require.Equal(t, []string{"customer-support", "billing"}, api.created)
}

func TestStoreLabelsUsesExistingLabels(t *testing.T) {
	p, api := newTestProvider(t)

	err := p.storeLabels(context.Background(), 7, "a@example.com",
		nil,
		[]string{p.TagToLabel("customer-support"), provider.LabelInbox},
	)
	require.NoError(t, err)
	require.Empty(t, api.created)
	require.Equal(t, []string{"Label_2", "INBOX"}, api.modified[0].add)
}

func TestStoreLabelsMatchesLabelCase(t *testing.T) {
	p, api := newTestProvider(t)

	require.Equal(t, "Work", p.TagToLabel("WORK"))
	require.Equal(t, `\Seen`, p.TagToFlag("Seen"))

	err := p.storeLabels(context.Background(), 7, "a@example.com",
		[]string{provider.LabelInbox},
		[]string{provider.LabelInbox, "WORK"},
	)
	require.NoError(t, err)
	require.Empty(t, api.created)
	require.Len(t, api.modified, 1)
	require.Equal(t, []string{"Label_1"}, api.modified[0].add)
}

func TestStoreLabelsSkipsUnknownMessages(t *testing.T) {
	p, api := newTestProvider(t)

	err := p.storeLabels(context.Background(), 7, "missing@example.com", nil, []string{"Work"})
	require.NoError(t, err)
	require.Empty(t, api.modified)
}

func TestStoreLabelsNoDelta(t *testing.T) {
	p, api := newTestProvider(t)

	err := p.storeLabels(context.Background(), 7, "a@example.com",
		[]string{"Work", provider.LabelInbox},
		[]string{provider.LabelInbox, "Work"},
	)
	require.NoError(t, err)
	require.Empty(t, api.modified)
}

func TestToTag(t *testing.T) {
	p, _ := newTestProvider(t)

	require.Equal(t, "seen", p.ToTag(`\Seen`))
	require.Equal(t, "important", p.ToTag(LabelImportant))
	require.Empty(t, p.ToTag(provider.LabelInbox))
	require.Empty(t, p.ToTag("INBOX"))
	require.Empty(t, p.ToTag("[Gmail]/All Mail"))
	require.Empty(t, p.ToTag("[Gmail]/Sent"))
	require.Equal(t, "starred", p.ToTag("[Gmail]/Starred"))
	require.Equal(t, "customer-support", p.ToTag("Customer Support"))
}

func TestTagToLabel(t *testing.T) {
	p, _ := newTestProvider(t)

	require.Equal(t, LabelImportant, p.TagToLabel("important"))
	require.Equal(t, "Customer Support", p.TagToLabel("customer-support"))
	require.Equal(t, "Work", p.TagToLabel("work"))
	require.Equal(t, "billing", p.TagToLabel("billing"))
	require.Empty(t, p.TagToLabel("seen"))
	require.Equal(t, `\Seen`, p.TagToFlag("seen"))
}
