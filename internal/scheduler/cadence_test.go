package scheduler

import (
	"testing"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

func TestNextDelta_AvailableKeepsRowWarm(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	delta := nextDelta(now, signal{status: domain.TranscriptAvailable, analysisQueued: true})
	if delta != 24*time.Hour {
		t.Fatalf("expected 24h, got %s", delta)
	}
}

func TestNextDelta_UpcomingWithinDay(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	event := now.Add(12 * time.Hour)
	delta := nextDelta(now, signal{status: domain.TranscriptUpcoming, eventDate: &event})
	if delta != 10*time.Minute {
		t.Fatalf("expected 10m, got %s", delta)
	}
}

func TestNextDelta_UpcomingWithinWeek(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	event := now.Add(4 * 24 * time.Hour)
	delta := nextDelta(now, signal{status: domain.TranscriptUpcoming, eventDate: &event})
	if delta != time.Hour {
		t.Fatalf("expected 1h, got %s", delta)
	}
}

func TestNextDelta_UpcomingFarOut(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	event := now.Add(30 * 24 * time.Hour)
	delta := nextDelta(now, signal{status: domain.TranscriptUpcoming, eventDate: &event})
	if delta != 4*time.Hour {
		t.Fatalf("expected 4h, got %s", delta)
	}
}

func TestNextDelta_NoneOutsideActiveQuarter(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	delta := nextDelta(now, signal{status: domain.TranscriptNone, activeQuarter: false})
	if delta != 24*time.Hour {
		t.Fatalf("expected 24h, got %s", delta)
	}
}

func TestNextDelta_NoneDuringActiveQuarterIsJittered(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	delta := nextDelta(now, signal{status: domain.TranscriptNone, activeQuarter: true})
	if delta < 4*time.Hour || delta > 6*time.Hour {
		t.Fatalf("expected delta in [4h, 6h], got %s", delta)
	}
}

func TestNextDelta_TransientErrorBacksOffExponentially(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	d0 := nextDelta(now, signal{transientErr: true, attempts: 0})
	if d0 != 30*time.Second {
		t.Fatalf("attempt 0: expected 30s, got %s", d0)
	}

	d3 := nextDelta(now, signal{transientErr: true, attempts: 3})
	if d3 != 4*time.Minute {
		t.Fatalf("attempt 3: expected 4m, got %s", d3)
	}

	dCapped := nextDelta(now, signal{transientErr: true, attempts: 20})
	if dCapped != time.Hour {
		t.Fatalf("expected backoff capped at 1h, got %s", dCapped)
	}
}

func TestWithJitter_NeverBelowBase(t *testing.T) {
	base := time.Hour
	for i := 0; i < 50; i++ {
		got := withJitter(base)
		if got < base || got > base+time.Duration(float64(base)*0.2) {
			t.Fatalf("jittered delta %s out of bounds for base %s", got, base)
		}
	}
}

func TestNextCheckAt_AddsDeltaToNow(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	next := NextCheckAt(now, SignalParams{Status: domain.TranscriptAvailable, AnalysisQueued: true})
	if !next.After(now) {
		t.Fatalf("expected next_check_at after now, got %s", next)
	}
	if next.Before(now.Add(24 * time.Hour)) {
		t.Fatalf("expected at least 24h delta, got %s", next.Sub(now))
	}
}

func TestNextCheckAt_NoneActiveQuarter_NeverExceedsSixHourCeiling(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		next := NextCheckAt(now, SignalParams{Status: domain.TranscriptNone, ActiveQuarter: true})
		delta := next.Sub(now)
		if delta < 4*time.Hour || delta > 6*time.Hour {
			t.Fatalf("delta %s out of [4h, 6h] range — generic jitter was applied on top of nextDelta's own jitter", delta)
		}
	}
}
