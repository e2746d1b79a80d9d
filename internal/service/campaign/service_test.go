package campaign

import (
	"testing"
)

func validSteps() []StepInput {
	return []StepInput{
		{StepNumber: 1, DelayDays: 0, IsActive: true, Subject: "intro", Body: "hello"},
		{StepNumber: 2, DelayDays: 3, IsActive: true, Subject: "follow up", Body: "bump"},
	}
}

func TestValidateCreateInputFailures(t *testing.T) {
	cases := []CreateCampaignInput{
		{Name: "", TimeZone: "UTC", FromAccountID: "acct", Steps: validSteps()},
		{Name: "test", TimeZone: "", FromAccountID: "acct", Steps: validSteps()},
		{Name: "test", TimeZone: "invalid", FromAccountID: "acct", Steps: validSteps()},
		{Name: "test", TimeZone: "UTC", FromAccountID: "", Steps: validSteps()},
		{Name: "test", TimeZone: "UTC", FromAccountID: "acct", DailySendLimit: -1, Steps: validSteps()},
		{Name: "test", TimeZone: "UTC", FromAccountID: "acct", DailySendLimit: 0, Steps: validSteps()},
		{Name: "test", TimeZone: "UTC", FromAccountID: "acct", DailySendLimit: 50},
	}

	for _, tc := range cases {
		if err := validateCreateInput(tc); err == nil {
			t.Errorf("expected validation error for input %+v", tc)
		}
	}
}

func TestValidateCreateInputSuccess(t *testing.T) {
	input := CreateCampaignInput{
		Name:           "test",
		TimeZone:       "America/New_York",
		FromAccountID:  "acct-1",
		DailySendLimit: 50,
		Steps:          validSteps(),
	}

	if err := validateCreateInput(input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStepsRejectsSparseNumbering(t *testing.T) {
	steps := []StepInput{
		{StepNumber: 1, IsActive: true, Subject: "a", Body: "b"},
		{StepNumber: 3, IsActive: true, Subject: "c", Body: "d"},
	}

	if err := validateSteps(steps); err == nil {
		t.Fatal("expected sparse step numbering to fail validation")
	}
}

func TestValidateStepsRejectsNegativeDelay(t *testing.T) {
	steps := []StepInput{
		{StepNumber: 1, DelayDays: -1, IsActive: true, Subject: "a", Body: "b"},
	}

	if err := validateSteps(steps); err == nil {
		t.Fatal("expected negative delay to fail validation")
	}
}

func TestParseWindow(t *testing.T) {
	window, err := parseWindow("09:00", "17:30", true)
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if window.Start.Hour != 9 || window.Start.Minute != 0 {
		t.Fatalf("unexpected start %+v", window.Start)
	}
	if window.End.Hour != 17 || window.End.Minute != 30 {
		t.Fatalf("unexpected end %+v", window.End)
	}
	if !window.WeekdaysOnly {
		t.Fatal("expected weekdays only to carry through")
	}
}

func TestParseWindowRejectsInvertedWindow(t *testing.T) {
	if _, err := parseWindow("22:00", "02:00", false); err == nil {
		t.Fatal("expected midnight-crossing window to fail validation")
	}
}

func TestParseWindowRejectsMalformedTime(t *testing.T) {
	cases := [][2]string{
		{"9am", "17:00"},
		{"09:00", "25:00"},
		{"09:61", "17:00"},
		{"", "17:00"},
	}

	for _, tc := range cases {
		if _, err := parseWindow(tc[0], tc[1], false); err == nil {
			t.Errorf("expected parse error for window %q-%q", tc[0], tc[1])
		}
	}
}
