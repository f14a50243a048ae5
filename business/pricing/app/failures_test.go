package app

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestFailureTrackerDisablesAtThreshold(t *testing.T) {
	tr := NewFailureTracker(3)

	for i := 0; i < 2; i++ {
		if tr.RecordFailure(tokenA, tokenB) {
			t.Fatalf("disabled after %d failures, threshold is 3", i+1)
		}
		if tr.Disabled(tokenA, tokenB) {
			t.Fatalf("Disabled reported true after %d failures", i+1)
		}
	}

	if !tr.RecordFailure(tokenA, tokenB) {
		t.Fatal("third failure did not disable the pair")
	}
	if !tr.Disabled(tokenA, tokenB) {
		t.Fatal("Disabled reported false after threshold")
	}
}

func TestFailureTrackerSuccessResetsStreak(t *testing.T) {
	tr := NewFailureTracker(3)

	tr.RecordFailure(tokenA, tokenB)
	tr.RecordFailure(tokenA, tokenB)
	tr.RecordSuccess(tokenA, tokenB)

	// Streak restarted: it takes a full threshold of failures again.
	if tr.RecordFailure(tokenA, tokenB) || tr.RecordFailure(tokenA, tokenB) {
		t.Fatal("pair disabled before a fresh threshold of failures")
	}
	if !tr.RecordFailure(tokenA, tokenB) {
		t.Fatal("fresh streak of threshold failures did not disable")
	}
}

func TestFailureTrackerOrderedPairsIndependent(t *testing.T) {
	tr := NewFailureTracker(2)

	tr.RecordFailure(tokenA, tokenB)
	tr.RecordFailure(tokenA, tokenB)

	if !tr.Disabled(tokenA, tokenB) {
		t.Fatal("forward pair not disabled")
	}
	if tr.Disabled(tokenB, tokenA) {
		t.Fatal("reverse pair disabled by forward failures")
	}
}

func TestFailureTrackerCaseInsensitiveKey(t *testing.T) {
	tr := NewFailureTracker(2)

	lowerA := common.HexToAddress(strings.ToLower(tokenA.Hex()))
	tr.RecordFailure(tokenA, tokenB)
	tr.RecordFailure(lowerA, tokenB)

	if !tr.Disabled(tokenA, tokenB) {
		t.Fatal("mixed-case addresses tracked as different pairs")
	}
}

func TestFailureTrackerDefaultThreshold(t *testing.T) {
	tr := NewFailureTracker(0)
	for i := 0; i < DefaultFailureThreshold-1; i++ {
		if tr.RecordFailure(tokenA, tokenB) {
			t.Fatalf("disabled after %d failures, default threshold is %d", i+1, DefaultFailureThreshold)
		}
	}
	if !tr.RecordFailure(tokenA, tokenB) {
		t.Fatal("default threshold not applied")
	}
}
