package app

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultFailureThreshold disables a pair after this many consecutive
// failures when no explicit threshold is configured.
const DefaultFailureThreshold = 5

// FailureTracker counts consecutive quote failures per ordered pair and
// disables a pair for the remainder of the process lifetime once the
// threshold is hit. Any single success resets the streak. Each adapter owns
// its own tracker; one venue's flakiness never silences another.
type FailureTracker struct {
	mu        sync.Mutex
	threshold int
	streaks   map[string]int
	disabled  map[string]bool
}

// NewFailureTracker creates a tracker with the given consecutive-failure
// threshold; non-positive values fall back to DefaultFailureThreshold.
func NewFailureTracker(threshold int) *FailureTracker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &FailureTracker{
		threshold: threshold,
		streaks:   make(map[string]int),
		disabled:  make(map[string]bool),
	}
}

// pairKey builds the ordered-pair key, case-insensitively.
func pairKey(tokenIn, tokenOut common.Address) string {
	return strings.ToLower(tokenIn.Hex()) + ">" + strings.ToLower(tokenOut.Hex())
}

// Disabled reports whether the ordered pair has been shut off.
func (t *FailureTracker) Disabled(tokenIn, tokenOut common.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disabled[pairKey(tokenIn, tokenOut)]
}

// RecordFailure increments the pair's streak and returns true when this
// failure crossed the threshold and disabled the pair.
func (t *FailureTracker) RecordFailure(tokenIn, tokenOut common.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pairKey(tokenIn, tokenOut)
	if t.disabled[key] {
		return false
	}
	t.streaks[key]++
	if t.streaks[key] >= t.threshold {
		t.disabled[key] = true
		return true
	}
	return false
}

// RecordSuccess resets the pair's failure streak to zero.
func (t *FailureTracker) RecordSuccess(tokenIn, tokenOut common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streaks, pairKey(tokenIn, tokenOut))
}

// Reset clears all state. Tests only.
func (t *FailureTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streaks = make(map[string]int)
	t.disabled = make(map[string]bool)
}
