package blob

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
)

func TestFSStore(t *testing.T) {
	s := NewFSStore(t.TempDir())
	ctx := context.Background()

	key := MessageKey("support", 7, 42)
	require.Equal(t, "support/7/42.eml", key)

	raw := []byte("Subject: hi\r\n\r\nbody\r\n")
	require.NoError(t, s.Write(ctx, key, raw))
	require.NoError(t, s.Write(ctx, MessageKey("support", 7, 43), raw))
	require.NoError(t, s.Write(ctx, MessageKey("sales", 1, 1), raw))

	got, err := s.Read(ctx, key)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	keys, err := s.List(ctx, "support")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"support/7/42.eml", "support/7/43.eml"}, keys)

	_, err = s.Read(ctx, "support/7/99.eml")
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, s.Write(ctx, "../escape.eml", raw))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, model.BlobConfig{Type: "none"})
	require.NoError(t, err)
	require.Nil(t, s)

	dir := t.TempDir()
	s, err = New(ctx, model.BlobConfig{Type: "fs", Dir: dir, Prefix: "raw"})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "a/b.eml", []byte("x")))
	_, err = os.Stat(dir + "/raw/a/b.eml")
	require.NoError(t, err)

	_, err = New(ctx, model.BlobConfig{Type: "fs"})
	require.Error(t, err)

	_, err = New(ctx, model.BlobConfig{Type: "ftp"})
	require.Error(t, err)
}

// TestS3Store runs against an S3-compatible endpoint such as MinIO when
// MAILSYNC_TEST_S3_ENDPOINT is set.
func TestS3Store(t *testing.T) {
	endpoint := os.Getenv("MAILSYNC_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("MAILSYNC_TEST_S3_ENDPOINT not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, model.BlobConfig{
		Type:            "s3",
		Endpoint:        endpoint,
		Bucket:          "mailsync-test",
		Prefix:          "raw",
		AccessKeyID:     os.Getenv("MAILSYNC_TEST_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("MAILSYNC_TEST_S3_SECRET_ACCESS_KEY"),
	})
	require.NoError(t, err)

	key := MessageKey("support", 7, 42)
	require.NoError(t, s.Write(ctx, key, []byte("hello")))

	got, err := s.Read(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	keys, err := s.List(ctx, "support/7")
	require.NoError(t, err)
	require.Contains(t, keys, key)

	_, err = s.Read(ctx, "support/7/nope.eml")
	require.ErrorIs(t, err, ErrNotFound)
}
