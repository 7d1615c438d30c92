// Package blob retains raw messages in a filesystem directory or an
// S3-compatible bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nhle/mailsync/internal/model"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes blobs by key. Keys use forward slashes.
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// MessageKey returns the key under which the raw message with the given
// UID is kept.
func MessageKey(mailboxID string, uidValidity, uid uint32) string {
	return path.Join(mailboxID, fmt.Sprint(uidValidity), fmt.Sprintf("%d.eml", uid))
}

// New builds the store selected by cfg. It returns nil when retention is
// disabled.
func New(ctx context.Context, cfg model.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "fs":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("blob: dir required for fs store")
		}
		return NewFSStore(filepath.Join(cfg.Dir, cfg.Prefix)), nil
	case "s3":
		client, err := NewS3Client(S3Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.Prefix), nil
	}
	return nil, fmt.Errorf("blob: unknown store type %q", cfg.Type)
}

// FSStore stores blobs on the local filesystem.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed store rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: filepath.Clean(root)}
}

func (f *FSStore) path(key string) (string, error) {
	p := filepath.Join(f.root, filepath.FromSlash(key))
	if p != f.root && !strings.HasPrefix(p, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("blob: key %q escapes root", key)
	}
	return p, nil
}

// Write writes data to key (path relative to root).
func (f *FSStore) Write(_ context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// Read reads a blob by key.
func (f *FSStore) Read(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// List returns all keys under prefix, walking recursively.
func (f *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	dir, err := f.path(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	return keys, err
}

// S3Store stores blobs in S3 under an optional key prefix.
type S3Store struct {
	client *S3Client
	prefix string
}

// NewS3Store creates an S3-backed store.
func NewS3Store(client *S3Client, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, prefix: prefix}
}

// Write writes data to key.
func (s *S3Store) Write(ctx context.Context, key string, data []byte) error {
	return s.client.PutBytes(ctx, s.prefix+key, data)
}

// Read reads a blob by key.
func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	return s.client.Get(ctx, s.prefix+key)
}

// List returns keys under prefix, relative to the store prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	all, err := s.client.List(ctx, s.prefix+prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if k != "" {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
	}
	return keys, nil
}
