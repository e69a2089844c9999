package scheduler

import "time"

// TargetQuarter returns the most recently-ended reporting quarter as of t,
// using calendar quarters (Q1 Jan-Mar ... Q4 Oct-Dec) as the fiscal
// calendar mapping. A quarter is considered "ended" the day after its last
// calendar day, so the target always points at a quarter with a real
// report to chase rather than the one still in progress.
func TargetQuarter(t time.Time) (quarter, year int) {
	t = t.UTC()
	currentQuarter := (int(t.Month())-1)/3 + 1
	quarter = currentQuarter - 1
	year = t.Year()
	if quarter == 0 {
		quarter = 4
		year--
	}
	return quarter, year
}

// IsActiveQuarter reports whether (quarter, year) is still the current
// target as of now — used by the cadence table to decide whether a "none"
// observation should poll every few hours or fall back to daily.
func IsActiveQuarter(now time.Time, quarter, year int) bool {
	tq, ty := TargetQuarter(now)
	return quarter == tq && year == ty
}

const retirementWindow = 90 * 24 * time.Hour

// RetirementCutoff is the last_available_at boundary for soft-retirement: a
// schedule row whose transcript was last seen available before it is
// retired rather than polled at full priority. It is now minus the 90-day
// grace window.
func RetirementCutoff(now time.Time) time.Time {
	return now.Add(-retirementWindow)
}
