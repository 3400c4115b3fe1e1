package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m := NewManual(start)

	m.Advance(1500 * time.Millisecond)
	if got := m.Now().Sub(start); got != 1500*time.Millisecond {
		t.Fatalf("elapsed = %v, want 1.5s", got)
	}

	m.Advance(-time.Hour)
	if got := m.Now().Sub(start); got != 1500*time.Millisecond {
		t.Fatalf("negative advance moved clock: elapsed = %v", got)
	}

	m.Set(start)
	if got := m.Now().Sub(start); got != 1500*time.Millisecond {
		t.Fatalf("Set moved clock backwards: elapsed = %v", got)
	}
}
