package scheduler

import (
	"math"
	"math/rand"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

// signal is the observation the Fetcher pool reports back after one poll.
type signal struct {
	status         domain.TranscriptStatus
	eventDate      *time.Time
	analysisQueued bool
	transientErr   bool
	activeQuarter  bool
	attempts       int
}

// nextDelta maps a poll outcome to the base delay before the next check,
// before jitter is applied. Table mirrors the scheduler's cadence design:
// availability keeps a row warm for in-quarter follow-ups, an approaching
// event date tightens the cadence, and repeated transient failures back off
// exponentially rather than hammering a flaky oracle.
func nextDelta(now time.Time, s signal) time.Duration {
	if s.transientErr {
		backoff := time.Duration(math.Pow(2, float64(s.attempts))) * 30 * time.Second
		if backoff > time.Hour {
			backoff = time.Hour
		}
		return backoff
	}

	switch s.status {
	case domain.TranscriptAvailable:
		if s.analysisQueued {
			return 24 * time.Hour
		}
		return 24 * time.Hour
	case domain.TranscriptUpcoming:
		if s.eventDate == nil {
			return 4 * time.Hour
		}
		untilEvent := s.eventDate.Sub(now)
		switch {
		case untilEvent <= 24*time.Hour:
			return 10 * time.Minute
		case untilEvent <= 7*24*time.Hour:
			return time.Hour
		default:
			return 4 * time.Hour
		}
	case domain.TranscriptNone:
		if s.activeQuarter {
			return 4*time.Hour + time.Duration(rand.Int63n(int64(2*time.Hour)))
		}
		return 24 * time.Hour
	default:
		return 4 * time.Hour
	}
}

// withJitter adds uniform jitter in [0, 0.2*delta] to break thundering herds
// across rows that were all last checked around the same time.
func withJitter(delta time.Duration) time.Duration {
	if delta <= 0 {
		return delta
	}
	maxJitter := time.Duration(float64(delta) * 0.2)
	if maxJitter <= 0 {
		return delta
	}
	return delta + time.Duration(rand.Int63n(int64(maxJitter)+1))
}

// SignalParams is the externally visible shape of a poll outcome, used by
// callers outside this package (the fetcher pool) to compute a next check
// time without reaching into the unexported signal fields directly.
type SignalParams struct {
	Status         domain.TranscriptStatus
	EventDate      *time.Time
	AnalysisQueued bool
	TransientErr   bool
	ActiveQuarter  bool
	Attempts       int
}

// NextCheckAt computes the schedule row's next_check_at from the outcome of
// the poll that just completed.
func NextCheckAt(now time.Time, p SignalParams) time.Time {
	s := signal{
		status:         p.Status,
		eventDate:      p.EventDate,
		analysisQueued: p.AnalysisQueued,
		transientErr:   p.TransientErr,
		activeQuarter:  p.ActiveQuarter,
		attempts:       p.Attempts,
	}
	delta := nextDelta(now, s)
	// The none+activeQuarter branch already rolls its own 4-6h jitter; a
	// second uniform pass on top of it would push the lane past the 6h
	// ceiling the cadence table specifies.
	if s.status == domain.TranscriptNone && s.activeQuarter {
		return now.Add(delta)
	}
	return now.Add(withJitter(delta))
}
