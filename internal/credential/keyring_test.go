package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(env map[string]string) *Store {
	s := NewStore(keyring.NewArrayKeyring(nil))
	s.getenv = func(key string) string { return env[key] }
	return s
}

func TestPasswordRoundTrip(t *testing.T) {
	s := newTestStore(nil)

	_, err := s.Password("support")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetPassword("support", "hunter2"))
	got, err := s.Password("support")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	_, err = s.RefreshToken("support")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPasswordEnvOverride(t *testing.T) {
	s := newTestStore(map[string]string{"MAILSYNC_PASSWORD_TEAM_SUPPORT": "from-env"})
	require.NoError(t, s.SetPassword("team-support", "from-keyring"))

	got, err := s.Password("team-support")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestRefreshTokenAndDelete(t *testing.T) {
	s := newTestStore(nil)
	require.NoError(t, s.SetRefreshToken("gmail", "1//token"))
	require.NoError(t, s.SetPassword("gmail", "app-password"))

	got, err := s.RefreshToken("gmail")
	require.NoError(t, err)
	assert.Equal(t, "1//token", got)

	require.NoError(t, s.Delete("gmail"))
	require.NoError(t, s.Delete("gmail"))

	_, err = s.RefreshToken("gmail")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Password("gmail")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "imap-support", PasswordKey("support"))
	assert.Equal(t, "gmail-refresh-support", RefreshTokenKey("support"))
	assert.Equal(t, "MAILSYNC_PASSWORD_SUPPORT", PasswordEnv("support"))
}
