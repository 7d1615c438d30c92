package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Work", "work"},
		{"  Customer   Support ", "customer-support"},
		{"Follow--up", "follow-up"},
		{"Q&A / Sales?", "qa-sales"},
		{"Ｆｕｌｌｗｉｄｔｈ", "fullwidth"},
		{"Épicerie", "épicerie"},
		{"a\tb\nc", "a-b-c"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, CleanTag(tt.in))
		})
	}
}

func TestCleanTagTruncates(t *testing.T) {
	long := strings.Repeat("abcd ", 20)
	tag := CleanTag(long)
	require.LessOrEqual(t, len([]rune(tag)), MaxTagLength)
	require.False(t, strings.HasSuffix(tag, "-"))
	require.True(t, strings.HasPrefix(tag, "abcd-abcd"))
}

func TestFlagTagMapping(t *testing.T) {
	tag, ok := FlagTag(`\seen`)
	require.True(t, ok)
	require.Equal(t, "seen", tag)

	_, ok = FlagTag(`\Deleted`)
	require.False(t, ok)

	require.Equal(t, `\Flagged`, TagFlag("flagged"))
	require.Empty(t, TagFlag("work"))

	require.True(t, IsInboxName("inbox"))
	require.True(t, IsInboxName(`\Inbox`))
	require.False(t, IsInboxName("Inboxes"))
	require.True(t, IsSystemName(`\Important`))
}
