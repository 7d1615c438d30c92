package provider

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDelta(t *testing.T) {
	tests := []struct {
		name        string
		old, new    []string
		add, remove []string
	}{
		{
			name: "no change",
			old:  []string{`\Seen`, `\Flagged`},
			new:  []string{`\Flagged`, `\Seen`},
		},
		{
			name: "add only",
			old:  []string{`\Seen`},
			new:  []string{`\Seen`, `\Flagged`},
			add:  []string{`\Flagged`},
		},
		{
			name:   "remove only",
			old:    []string{`\Seen`, `\Flagged`},
			new:    []string{`\Seen`},
			remove: []string{`\Flagged`},
		},
		{
			name:   "both with duplicates",
			old:    []string{"a", "b", "b", "c"},
			new:    []string{"c", "d", "d", "e"},
			add:    []string{"d", "e"},
			remove: []string{"a", "b"},
		},
		{
			name: "from empty",
			new:  []string{`\Inbox`, "Work"},
			add:  []string{`\Inbox`, "Work"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add, remove := Delta(tt.old, tt.new)
			require.Equal(t, tt.add, add)
			require.Equal(t, tt.remove, remove)
		})
	}
}

func TestCompact(t *testing.T) {
	require.Equal(t,
		[]string{"inbox", "work", "seen"},
		Compact([]string{"inbox", "", "work", "inbox", "seen", "", "work"}),
	)
	require.Empty(t, Compact(nil))
	require.Empty(t, Compact([]string{"", ""}))
}

func TestHasInbox(t *testing.T) {
	require.True(t, HasInbox([]string{"Work", LabelInbox}))
	require.True(t, HasInbox([]string{LabelInboxName}))
	require.False(t, HasInbox([]string{"Work", `\Important`}))
	require.False(t, HasInbox(nil))
}

func TestUIDRangeContains(t *testing.T) {
	require.True(t, All.Contains(1))
	require.True(t, All.Contains(1<<31))

	above := UIDRange{From: 11}
	require.False(t, above.Contains(10))
	require.True(t, above.Contains(11))
	require.True(t, above.Contains(5000))

	upTo := UIDRange{To: 10}
	require.True(t, upTo.Contains(1))
	require.True(t, upTo.Contains(10))
	require.False(t, upTo.Contains(11))
}

func TestFieldHas(t *testing.T) {
	f := FieldUID | FieldFlags | FieldLabels
	require.True(t, f.Has(FieldFlags))
	require.True(t, f.Has(FieldUID|FieldLabels))
	require.False(t, f.Has(FieldBody))
	require.Equal(t, "LABELS", FieldLabels.String())
}
