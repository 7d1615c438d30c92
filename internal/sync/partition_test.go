package sync_test

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailsync "github.com/nhle/mailsync/internal/sync"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name     string
		uids     []uint32
		lastSeen uint32
		wantOld  []uint32
		wantNew  []uint32
	}{
		{name: "never synced", uids: []uint32{1, 2, 3}, lastSeen: 0, wantNew: []uint32{1, 2, 3}},
		{name: "split", uids: []uint32{1, 2, 3, 4}, lastSeen: 2, wantOld: []uint32{1, 2}, wantNew: []uint32{3, 4}},
		{name: "all old", uids: []uint32{1, 2}, lastSeen: 5, wantOld: []uint32{1, 2}},
		{name: "empty", lastSeen: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldUIDs, newUIDs := mailsync.Partition(tt.uids, tt.lastSeen)
			assert.Equal(t, tt.wantOld, oldUIDs)
			assert.Equal(t, tt.wantNew, newUIDs)
		})
	}
}

func TestSampleUIDs(t *testing.T) {
	uids := make([]uint32, 100)
	for i := range uids {
		uids[i] = uint32(i + 1)
	}
	orig := slices.Clone(uids)
	rng := rand.New(rand.NewPCG(42, 7))

	sample := mailsync.SampleUIDs(uids, 10, rng)
	require.Len(t, sample, 10)
	assert.Equal(t, orig, uids, "input must not be modified")

	seen := map[uint32]bool{}
	for _, uid := range sample {
		assert.Contains(t, uids, uid)
		assert.False(t, seen[uid], "uid %d sampled twice", uid)
		seen[uid] = true
	}
}

func TestSampleUIDsSmallInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	assert.Equal(t, []uint32{1, 2, 3}, mailsync.SampleUIDs([]uint32{1, 2, 3}, 500, rng))
	assert.Nil(t, mailsync.SampleUIDs(nil, 500, rng))
	assert.Nil(t, mailsync.SampleUIDs([]uint32{1}, 0, rng))
}

func TestFirstUIDs(t *testing.T) {
	assert.Equal(t, []uint32{1, 2}, mailsync.FirstUIDs([]uint32{1, 2, 3}, 2))
	assert.Equal(t, []uint32{1, 2, 3}, mailsync.FirstUIDs([]uint32{1, 2, 3}, 51))
	assert.Nil(t, mailsync.FirstUIDs([]uint32{1}, 0))
}

func TestAdvanceCursor(t *testing.T) {
	fail := errors.New("unparseable")

	tests := []struct {
		name     string
		lastSeen uint32
		results  []mailsync.IngestResult
		want     uint32
	}{
		{name: "no results", lastSeen: 4, want: 4},
		{
			name:     "all succeed",
			lastSeen: 4,
			results:  []mailsync.IngestResult{{UID: 5}, {UID: 7}, {UID: 9}},
			want:     9,
		},
		{
			name:     "stops at first failure",
			lastSeen: 4,
			results:  []mailsync.IngestResult{{UID: 5}, {UID: 6, Err: fail}, {UID: 7}},
			want:     5,
		},
		{
			name:     "leading failure",
			lastSeen: 4,
			results:  []mailsync.IngestResult{{UID: 5, Err: fail}, {UID: 6}},
			want:     4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mailsync.AdvanceCursor(tt.lastSeen, tt.results))
		})
	}
}
