package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/api"
	"github.com/nhle/mailsync/internal/blob"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/tests/testutil"
)

type fakeSyncer struct {
	triggered []string
}

func (f *fakeSyncer) Trigger(id string) error {
	if id != "support" {
		return fmt.Errorf("%w: %s", sync.ErrUnknownMailbox, id)
	}
	f.triggered = append(f.triggered, id)
	return nil
}

func (f *fakeSyncer) Statuses() []sync.SyncStatus {
	return []sync.SyncStatus{{MailboxID: "support", State: sync.SyncRunning}}
}

type fixture struct {
	store   *store.SQLiteStore
	blobs   *blob.FSStore
	syncer  *fakeSyncer
	handler http.Handler
	topic   *model.Topic
	mirror  *model.IncomingMessage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := testutil.NewTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertMailbox(ctx, model.Mailbox{
		ID: "support", Name: "INBOX", Provider: model.ProviderGeneric, Host: "imap.example.com", Port: 993,
	}))

	topic := &model.Topic{MailboxID: "support", Title: "Printer on fire"}
	post := &model.Post{Author: "alice@example.com", Body: "It is burning.", MessageID: "a@example.com"}
	mirror := &model.IncomingMessage{MailboxID: "support", UIDValidity: 7, UID: 1, MessageID: "a@example.com"}
	require.NoError(t, s.CreateTopic(ctx, topic, post, mirror))

	syncer := &fakeSyncer{}
	blobs := blob.NewFSStore(t.TempDir())
	return &fixture{
		store:   s,
		blobs:   blobs,
		syncer:  syncer,
		handler: api.NewRouter(api.Config{Store: s, Syncer: syncer, Blobs: blobs}),
		topic:   topic,
		mirror:  mirror,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) syncEnabled(t *testing.T) bool {
	t.Helper()
	m, err := f.store.FindIncomingMessage(context.Background(), "support", 7, 1)
	require.NoError(t, err)
	return m.SyncEnabled
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListMailboxes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/mailboxes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "support", got[0]["id"])
	status, ok := got[0]["status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "running", status["state"])
}

func TestTriggerSync(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/mailboxes/support/sync", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"support"}, f.syncer.triggered)

	rec = f.do(t, http.MethodPost, "/mailboxes/unknown/sync", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTopic(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/topics/"+f.topic.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Title string       `json:"title"`
		Posts []model.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Printer on fire", got.Title)
	require.Len(t, got.Posts, 1)
	assert.Equal(t, "It is burning.", got.Posts[0].Body)

	rec = f.do(t, http.MethodGet, "/topics/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetTagsMarksForSync(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.syncEnabled(t))

	rec := f.do(t, http.MethodPut, "/topics/"+f.topic.ID+"/tags", `{"tags":["urgent","billing"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Topic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.ElementsMatch(t, []string{"urgent", "billing"}, got.Tags)
	assert.True(t, f.syncEnabled(t))
}

func TestSetTagsNormalizesNames(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/topics/"+f.topic.ID+"/tags", `{"tags":["Seen","Customer Support","WORK",""]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Topic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"customer-support", "seen", "work"}, got.Tags)
	assert.True(t, f.syncEnabled(t))
}

func TestSetTagsRejectsBadBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/topics/"+f.topic.ID+"/tags", `{"tags":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, f.syncEnabled(t))
}

func TestArchiveAndUnarchive(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/topics/"+f.topic.ID+"/archive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	topic, err := f.store.GetTopic(context.Background(), f.topic.ID)
	require.NoError(t, err)
	assert.True(t, topic.Archived)
	assert.True(t, f.syncEnabled(t))

	rec = f.do(t, http.MethodPost, "/topics/"+f.topic.ID+"/unarchive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	topic, err = f.store.GetTopic(context.Background(), f.topic.ID)
	require.NoError(t, err)
	assert.False(t, topic.Archived)

	rec = f.do(t, http.MethodPost, "/topics/nope/archive", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerWithoutPoller(t *testing.T) {
	s := testutil.NewTestStore(t)
	handler := api.NewRouter(api.Config{Store: s})

	req := httptest.NewRequest(http.MethodPost, "/mailboxes/support/sync", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRawPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := "/topics/" + f.topic.ID + "/posts/1/raw"

	rec := f.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not retained")

	raw := "Message-ID: <a@example.com>\r\nSubject: Printer on fire\r\n\r\nIt is burning.\r\n"
	key := blob.MessageKey("support", 7, 1)
	require.NoError(t, f.blobs.Write(ctx, key, []byte(raw)))
	require.NoError(t, f.store.SetRawKey(ctx, f.mirror.ID, key))

	rec = f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "message/rfc822", rec.Header().Get("Content-Type"))
	assert.Equal(t, raw, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/topics/"+f.topic.ID+"/posts/2/raw", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/topics/"+f.topic.ID+"/posts/first/raw", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/topics/"+f.topic.ID+"/posts/0/raw", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRawPostMissingBlob(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetRawKey(context.Background(), f.mirror.ID, blob.MessageKey("support", 7, 99)))

	rec := f.do(t, http.MethodGet, "/topics/"+f.topic.ID+"/posts/1/raw", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "raw message not found")
}

func TestGetRawPostWithoutRetention(t *testing.T) {
	s := testutil.NewTestStore(t)
	handler := api.NewRouter(api.Config{Store: s})

	req := httptest.NewRequest(http.MethodGet, "/topics/any/posts/1/raw", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
