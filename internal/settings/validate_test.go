package settings

import (
	"testing"
	"time"
)

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := ParseHHMM("23:15")
	if err != nil {
		t.Fatalf("ParseHHMM error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}

	for _, bad := range []string{"24:00", "12:60", "9:00", "abc", "09-00", "", "09:0"} {
		if _, _, err := ParseHHMM(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestValidateDocument(t *testing.T) {
	t.Parallel()
	good := &Settings{
		MotivationTimes: []string{"09:00", " 20:05 ", "09:00"},
		Reminders: []Reminder{
			{Day: "monday", Time: "10:00", Text: " Standup "},
			{Day: "Monday", Time: "11:00", Text: "Standup"},
		},
	}
	if err := validateDocument(good); err != nil {
		t.Fatalf("validateDocument: %v", err)
	}
	// Times are trimmed and deduplicated, days and texts canonicalized.
	if len(good.MotivationTimes) != 2 || good.MotivationTimes[1] != "20:05" {
		t.Fatalf("times after validation: %v", good.MotivationTimes)
	}
	if good.Reminders[0].Day != "Monday" || good.Reminders[0].Text != "Standup" {
		t.Fatalf("reminder not canonicalized: %+v", good.Reminders[0])
	}

	bad := []*Settings{
		{MotivationTimes: []string{"25:99"}},
		{MotivationTimes: []string{"9:00"}},
		{MotivationTimes: []string{"abc"}},
		{Reminders: []Reminder{{Day: "Funday", Time: "10:00", Text: "x"}}},
		{Reminders: []Reminder{{Day: "Monday", Time: "9:00", Text: "x"}}},
		{Reminders: []Reminder{{Day: "Monday", Time: "10:00", Text: "  "}}},
		{Reminders: []Reminder{
			{Day: "Monday", Time: "10:00", Text: "x"},
			{Day: "monday", Time: "10:00", Text: "x"},
		}},
	}
	for i, s := range bad {
		normalize(s)
		if err := validateDocument(s); err == nil {
			t.Fatalf("case %d: expected validation failure", i)
		}
	}
}

func TestCanonicalDay(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"monday":    "Monday",
		"MONDAY":    "Monday",
		" Sunday ":  "Sunday",
		"wedNESday": "Wednesday",
	} {
		got, ok := CanonicalDay(in)
		if !ok || got != want {
			t.Fatalf("CanonicalDay(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := CanonicalDay("someday"); ok {
		t.Fatal("expected rejection for non-weekday")
	}
}

func TestWeekStart(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	// Wednesday 2026-01-07 -> Monday 2026-01-05 00:00
	now := time.Date(2026, 1, 7, 15, 30, 0, 0, loc)
	got := weekStart(now)
	want := time.Date(2026, 1, 5, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("weekStart = %v, want %v", got, want)
	}

	// A Monday maps to its own midnight.
	mon := time.Date(2026, 1, 5, 0, 0, 1, 0, loc)
	if got := weekStart(mon); !got.Equal(want) {
		t.Fatalf("weekStart(monday) = %v, want %v", got, want)
	}
}
