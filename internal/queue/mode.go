package queue

import "time"

// Mode is the engine's behavior for the pass, derived from the wall clock
// on every run. There is deliberately no persisted mode: recomputing from
// (now, holdDate) avoids drift from stale cached state.
type Mode string

const (
	// ModeFeed keeps the current pool fed from candidates.
	ModeFeed Mode = "feed"

	// ModeHold freezes the queue: no admissions, all candidates held.
	ModeHold Mode = "hold"
)

// SelectMode returns Feed strictly before the hold date and Hold from the
// hold date onwards. Comparison is on calendar dates; the time of day and
// time zones do not matter.
func SelectMode(now, holdDate time.Time) Mode {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	holdDay := time.Date(holdDate.Year(), holdDate.Month(), holdDate.Day(), 0, 0, 0, 0, time.UTC)
	if nowDay.Before(holdDay) {
		return ModeFeed
	}
	return ModeHold
}
