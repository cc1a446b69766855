package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// weekdays in canonical storage casing, Monday first to match the
// reminder UI ordering.
var weekdays = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// ParseHHMM validates a 24h clock value. "9:00" is rejected: stored
// times are always zero-padded so job ids and dedup stay stable.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// validateDocument applies the mutation-path rules to a document read
// from disk: strict HH:MM times, real weekday names, non-empty reminder
// texts, unique (day, time, text) triples. Duplicate motivation times
// are collapsed the way SetSendTimes collapses them; day names are
// rewritten to canonical casing.
func validateDocument(s *Settings) error {
	times := s.MotivationTimes[:0]
	seenT := map[string]bool{}
	for _, raw := range s.MotivationTimes {
		t := strings.TrimSpace(raw)
		if _, _, err := ParseHHMM(t); err != nil {
			return fmt.Errorf("motivation_times: %v", err)
		}
		if seenT[t] {
			continue
		}
		seenT[t] = true
		times = append(times, t)
	}
	s.MotivationTimes = times

	seenR := map[Reminder]bool{}
	for i := range s.Reminders {
		r := &s.Reminders[i]
		d, ok := CanonicalDay(r.Day)
		if !ok {
			return fmt.Errorf("reminders[%d]: %q is not a weekday name", i, r.Day)
		}
		r.Day = d
		r.Time = strings.TrimSpace(r.Time)
		if _, _, err := ParseHHMM(r.Time); err != nil {
			return fmt.Errorf("reminders[%d]: %v", i, err)
		}
		r.Text = strings.TrimSpace(r.Text)
		if r.Text == "" {
			return fmt.Errorf("reminders[%d]: reminder text is empty", i)
		}
		if seenR[*r] {
			return fmt.Errorf("reminders[%d]: duplicate of %s %s %q", i, r.Day, r.Time, r.Text)
		}
		seenR[*r] = true
	}
	return nil
}

// CanonicalDay maps case-insensitive input to the stored weekday name.
func CanonicalDay(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, d := range weekdays {
		if strings.EqualFold(s, d) {
			return d, true
		}
	}
	return "", false
}

// DayWeekday converts a canonical day name to time.Weekday.
func DayWeekday(day string) (time.Weekday, bool) {
	switch day {
	case "Monday":
		return time.Monday, true
	case "Tuesday":
		return time.Tuesday, true
	case "Wednesday":
		return time.Wednesday, true
	case "Thursday":
		return time.Thursday, true
	case "Friday":
		return time.Friday, true
	case "Saturday":
		return time.Saturday, true
	case "Sunday":
		return time.Sunday, true
	}
	return 0, false
}

// weekStart returns Monday 00:00 of now's week in now's location.
func weekStart(now time.Time) time.Time {
	d := now
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
}
