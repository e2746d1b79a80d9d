package window

import (
	"testing"
	"time"

	"github.com/acme/cold-outreach-engine/internal/domain"
)

func nineToFive(tz string, weekdaysOnly bool) *domain.Campaign {
	return &domain.Campaign{
		TimeZone: tz,
		SendingWindow: domain.SendingWindow{
			Start:        domain.ClockTime{Hour: 9, Minute: 0},
			End:          domain.ClockTime{Hour: 17, Minute: 0},
			WeekdaysOnly: weekdaysOnly,
		},
	}
}

func TestSendable(t *testing.T) {
	campaign := nineToFive("UTC", true)

	// 2024-01-01 is a Monday.
	mondayMorning := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !Sendable(campaign, mondayMorning) {
		t.Fatalf("expected %v to be sendable", mondayMorning)
	}

	mondayNight := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	if Sendable(campaign, mondayNight) {
		t.Fatalf("expected %v to be outside the window", mondayNight)
	}

	saturday := time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)
	if Sendable(campaign, saturday) {
		t.Fatalf("expected weekend %v to be unsendable", saturday)
	}

	// Boundaries are inclusive.
	if !Sendable(campaign, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("expected window start to be sendable")
	}
	if !Sendable(campaign, time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)) {
		t.Fatal("expected window end to be sendable")
	}
	if Sendable(campaign, time.Date(2024, 1, 1, 17, 1, 0, 0, time.UTC)) {
		t.Fatal("expected one minute past window end to be unsendable")
	}
}

func TestSendableConvertsTimezone(t *testing.T) {
	campaign := nineToFive("America/New_York", true)

	// 15:00 UTC on a Monday is 10:00 in New York (EST, UTC-5).
	utcAfternoon := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	if !Sendable(campaign, utcAfternoon) {
		t.Fatalf("expected %v to be sendable in New York", utcAfternoon)
	}

	// 10:00 UTC is 05:00 in New York.
	utcMorning := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if Sendable(campaign, utcMorning) {
		t.Fatalf("expected %v to be before the New York window", utcMorning)
	}
}

func TestSendableWeekendInLocalTimezone(t *testing.T) {
	campaign := nineToFive("America/New_York", true)

	// Saturday 10:00 in New York is 15:00 UTC.
	saturdayLocal := time.Date(2024, 1, 6, 15, 0, 0, 0, time.UTC)
	if Sendable(campaign, saturdayLocal) {
		t.Fatalf("expected local Saturday %v to be unsendable", saturdayLocal)
	}
}

func TestNextOpeningSameDay(t *testing.T) {
	campaign := nineToFive("UTC", false)

	earlyMonday := time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)
	got := NextOpening(campaign, earlyMonday)
	want := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextOpening = %v, want %v", got, want)
	}
}

func TestNextOpeningWithinWindowReturnsNow(t *testing.T) {
	campaign := nineToFive("UTC", false)

	inside := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := NextOpening(campaign, inside); !got.Equal(inside) {
		t.Fatalf("NextOpening = %v, want now %v", got, inside)
	}
}

func TestNextOpeningSkipsWeekend(t *testing.T) {
	campaign := nineToFive("UTC", true)

	// Saturday mid-morning rolls to Monday's window start.
	saturday := time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)
	got := NextOpening(campaign, saturday)
	want := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextOpening = %v, want Monday %v", got, want)
	}
	if isWeekend(got.Weekday()) {
		t.Fatalf("NextOpening returned a weekend instant: %v", got)
	}
}

func TestNextOpeningAfterWindowEndRollsToNextDay(t *testing.T) {
	campaign := nineToFive("UTC", false)

	eveningMonday := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	got := NextOpening(campaign, eveningMonday)
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextOpening = %v, want %v", got, want)
	}
}

func TestLocalMidnight(t *testing.T) {
	campaign := nineToFive("America/New_York", false)

	// 02:00 UTC on Jan 2 is still Jan 1 in New York.
	now := time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC)
	got := LocalMidnight(campaign, now)

	loc, _ := time.LoadLocation("America/New_York")
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("LocalMidnight = %v, want %v", got, want)
	}
}
