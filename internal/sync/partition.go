package sync

import "math/rand/v2"

// Per-pass work bounds.
const (
	DefaultOldSampleSize = 500
	DefaultNewBatchSize  = 51
)

// RandSource supplies the randomness used to sample old UIDs.
// *rand.Rand satisfies it.
type RandSource interface {
	IntN(n int) int
}

// globalRand draws from the goroutine-safe top-level generator.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Partition splits ascending uids around the cursor. A UID equal to
// lastSeenUID is old. When lastSeenUID is zero every UID is new.
func Partition(uids []uint32, lastSeenUID uint32) (oldUIDs, newUIDs []uint32) {
	for _, uid := range uids {
		if lastSeenUID != 0 && uid <= lastSeenUID {
			oldUIDs = append(oldUIDs, uid)
		} else {
			newUIDs = append(newUIDs, uid)
		}
	}
	return oldUIDs, newUIDs
}

// SampleUIDs returns a uniform random sample of min(n, len(uids)) UIDs
// without replacement. The input is not modified.
func SampleUIDs(uids []uint32, n int, rng RandSource) []uint32 {
	if n <= 0 || len(uids) == 0 {
		return nil
	}
	sample := append([]uint32(nil), uids...)
	if n >= len(sample) {
		return sample
	}

	// Partial Fisher-Yates: the first n slots end up holding the sample.
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(sample)-i)
		sample[i], sample[j] = sample[j], sample[i]
	}
	return sample[:n]
}

// FirstUIDs returns the n lowest UIDs of the ascending slice uids.
func FirstUIDs(uids []uint32, n int) []uint32 {
	if n <= 0 {
		return nil
	}
	if len(uids) <= n {
		return uids
	}
	return uids[:n]
}

// IngestResult is the outcome of ingesting one new message.
type IngestResult struct {
	UID uint32
	Err error
}

// AdvanceCursor folds ascending ingestion results into the new cursor
// position: it moves over the leading run of successes and stops at the
// first failure.
func AdvanceCursor(lastSeenUID uint32, results []IngestResult) uint32 {
	for _, r := range results {
		if r.Err != nil {
			break
		}
		if r.UID > lastSeenUID {
			lastSeenUID = r.UID
		}
	}
	return lastSeenUID
}
