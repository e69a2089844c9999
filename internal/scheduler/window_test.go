package scheduler

import (
	"testing"
	"time"
)

func TestTargetQuarter_MidQuarter(t *testing.T) {
	// August 2026 is in Q3; the most recently-ended quarter is Q2 2026.
	quarter, year := TargetQuarter(time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	if quarter != 2 || year != 2026 {
		t.Fatalf("expected Q2 2026, got Q%d %d", quarter, year)
	}
}

func TestTargetQuarter_RollsBackAcrossYearBoundary(t *testing.T) {
	quarter, year := TargetQuarter(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	if quarter != 4 || year != 2025 {
		t.Fatalf("expected Q4 2025, got Q%d %d", quarter, year)
	}
}

func TestIsActiveQuarter(t *testing.T) {
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	if !IsActiveQuarter(now, 2, 2026) {
		t.Fatal("expected Q2 2026 to be active")
	}
	if IsActiveQuarter(now, 1, 2026) {
		t.Fatal("expected Q1 2026 to not be active")
	}
}

func TestRetirementCutoff(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	cutoff := RetirementCutoff(now)
	if now.Sub(cutoff) != 90*24*time.Hour {
		t.Fatalf("expected 90 day window, got %s", now.Sub(cutoff))
	}
}
