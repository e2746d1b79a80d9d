// Package window evaluates campaign sending windows. All functions are pure:
// they take the instant to evaluate and never consult the wall clock
// themselves, so callers must pass a fresh "now" on every evaluation.
package window

import (
	"time"

	"github.com/acme/cold-outreach-engine/internal/domain"
)

// Sendable reports whether the campaign may send at the given instant. The
// instant is converted into the campaign's declared timezone; weekends are
// never sendable for weekdays-only windows; otherwise sendable iff
// start <= local time <= end at minute granularity.
func Sendable(campaign *domain.Campaign, now time.Time) bool {
	loc, err := time.LoadLocation(campaign.TimeZone)
	if err != nil {
		// An unresolvable timezone must not wedge the campaign.
		return true
	}

	local := now.In(loc)
	if campaign.SendingWindow.WeekdaysOnly && isWeekend(local.Weekday()) {
		return false
	}

	ord := local.Hour()*100 + local.Minute()
	return ord >= campaign.SendingWindow.Start.Ordinal() && ord <= campaign.SendingWindow.End.Ordinal()
}

// NextOpening returns the earliest instant at or after now at which Sendable
// is true. Used to reschedule deferred jobs instead of dropping them.
func NextOpening(campaign *domain.Campaign, now time.Time) time.Time {
	loc, err := time.LoadLocation(campaign.TimeZone)
	if err != nil {
		return now
	}

	if Sendable(campaign, now) {
		return now
	}

	local := now.In(loc)
	win := campaign.SendingWindow
	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		if win.WeekdaysOnly && isWeekend(day.Weekday()) {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), win.Start.Hour, win.Start.Minute, 0, 0, loc)
		if start.After(local) {
			return start
		}
	}

	// Unreachable for a validated window; fall back to now.
	return now
}

// LocalMidnight returns midnight of now's local day in the campaign's
// timezone. The daily cap counts messages created since this instant.
func LocalMidnight(campaign *domain.Campaign, now time.Time) time.Time {
	loc, err := time.LoadLocation(campaign.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func isWeekend(day time.Weekday) bool {
	return day == time.Saturday || day == time.Sunday
}
