// Package credential keeps mailbox secrets in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "mailsync"

// ErrNotFound is returned when no secret is stored for a mailbox.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes mailbox secrets.
type Store struct {
	ring   keyring.Keyring
	getenv func(string) string
}

// Open returns a store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailsync/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailsync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// NewStore wraps an open keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring, getenv: os.Getenv}
}

// PasswordKey is the keyring key of a mailbox's IMAP password.
func PasswordKey(mailboxID string) string {
	return "imap-" + mailboxID
}

// RefreshTokenKey is the keyring key of a mailbox's Gmail refresh token.
func RefreshTokenKey(mailboxID string) string {
	return "gmail-refresh-" + mailboxID
}

// PasswordEnv is the environment variable that overrides the stored
// password of a mailbox, e.g. MAILSYNC_PASSWORD_SUPPORT.
func PasswordEnv(mailboxID string) string {
	id := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, mailboxID)
	return "MAILSYNC_PASSWORD_" + strings.ToUpper(id)
}

// Password returns the IMAP password of a mailbox. The environment
// variable named by PasswordEnv takes precedence over the keyring.
func (s *Store) Password(mailboxID string) (string, error) {
	if v := s.getenv(PasswordEnv(mailboxID)); v != "" {
		return v, nil
	}
	return s.get(PasswordKey(mailboxID))
}

// SetPassword stores the IMAP password of a mailbox.
func (s *Store) SetPassword(mailboxID, password string) error {
	return s.set(PasswordKey(mailboxID), password)
}

// RefreshToken returns the Gmail OAuth refresh token of a mailbox.
func (s *Store) RefreshToken(mailboxID string) (string, error) {
	return s.get(RefreshTokenKey(mailboxID))
}

// SetRefreshToken stores the Gmail OAuth refresh token of a mailbox.
func (s *Store) SetRefreshToken(mailboxID, token string) error {
	return s.set(RefreshTokenKey(mailboxID), token)
}

// Delete removes every secret of a mailbox. Missing secrets are ignored.
func (s *Store) Delete(mailboxID string) error {
	for _, key := range []string{PasswordKey(mailboxID), RefreshTokenKey(mailboxID)} {
		if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, err)
		}
	}
	return nil
}

func (s *Store) get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

func (s *Store) set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}
