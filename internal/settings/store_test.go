package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "state.json"), time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	st := testStore(t)
	s := st.Snapshot()
	if s.Mode != ModeManual {
		t.Fatalf("default mode = %q, want %q", s.Mode, ModeManual)
	}
	if len(s.MotivationTimes) != 3 || s.MotivationTimes[0] != "09:00" {
		t.Fatalf("unexpected default times: %v", s.MotivationTimes)
	}
	if len(s.Quotes) == 0 {
		t.Fatal("expected seed quotes")
	}
	if _, _, ok := s.Destination(); ok {
		t.Fatal("destination must start unset")
	}
	// Defaults live in memory only until the first mutation.
	if _, err := os.Stat(st.Path()); !os.IsNotExist(err) {
		t.Fatalf("state file should not exist yet: %v", err)
	}
}

func TestOpenCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, time.UTC, zerolog.Nop())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	// The corrupt file must be left untouched for the operator.
	b, rerr := os.ReadFile(path)
	if rerr != nil || string(b) != "{not json" {
		t.Fatalf("corrupt file was modified: %q, %v", b, rerr)
	}
}

func TestOpenRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad_times":      `{"motivation_times": ["25:99", "abc"]}`,
		"unpadded_time":  `{"motivation_times": ["9:00"]}`,
		"bad_day":        `{"reminders": [{"day": "Funday", "time": "10:00", "text": "x"}]}`,
		"duplicate_slot": `{"reminders": [{"day": "Monday", "time": "10:00", "text": "x"}, {"day": "Monday", "time": "10:00", "text": "x"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Open(path, time.UTC, zerolog.Nop())
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestMutationPersistsAtomically(t *testing.T) {
	st := testStore(t)
	if _, err := st.SetDestination(-100555, nil); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := os.Stat(st.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}

	re, err := Open(st.Path(), time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	chat, topic, ok := re.Snapshot().Destination()
	if !ok || chat != -100555 || topic != 0 {
		t.Fatalf("destination after reload = %d/%d/%v", chat, topic, ok)
	}
}

func TestSetSendTimesValidatesAndDeduplicates(t *testing.T) {
	st := testStore(t)
	snap, err := st.SetSendTimes([]string{"09:00", " 09:00", "20:00"})
	if err != nil {
		t.Fatalf("SetSendTimes: %v", err)
	}
	if len(snap.MotivationTimes) != 2 || snap.MotivationTimes[0] != "09:00" || snap.MotivationTimes[1] != "20:00" {
		t.Fatalf("unexpected times: %v", snap.MotivationTimes)
	}

	// Unpadded input is malformed, not repaired.
	before := st.Snapshot()
	for _, bad := range [][]string{{"9:00"}, {"25:00"}, {"abc"}, {"09:00", "12:61"}, {}} {
		_, err := st.SetSendTimes(bad)
		if !IsValidation(err) {
			t.Fatalf("SetSendTimes(%v): expected validation error, got %v", bad, err)
		}
	}
	after := st.Snapshot()
	if strings.Join(after.MotivationTimes, ",") != strings.Join(before.MotivationTimes, ",") {
		t.Fatalf("rejected input changed state: %v -> %v", before.MotivationTimes, after.MotivationTimes)
	}
}

func TestAddReminderRejectsDuplicateTriple(t *testing.T) {
	st := testStore(t)
	r, _, err := st.AddReminder("monday", "10:00", "Standup")
	if err != nil {
		t.Fatalf("AddReminder: %v", err)
	}
	if r.Day != "Monday" || r.Time != "10:00" || r.Text != "Standup" {
		t.Fatalf("unexpected reminder: %+v", r)
	}

	if _, _, err := st.AddReminder("Monday", "10:00", "Standup"); !IsValidation(err) {
		t.Fatalf("duplicate triple: expected validation error, got %v", err)
	}
	// Same text at another slot is a different reminder.
	if _, _, err := st.AddReminder("Monday", "11:00", "Standup"); err != nil {
		t.Fatalf("different time: %v", err)
	}
	if got := len(st.Snapshot().Reminders); got != 2 {
		t.Fatalf("reminder count = %d, want 2", got)
	}

	if _, _, err := st.AddReminder("Funday", "10:00", "x"); !IsValidation(err) {
		t.Fatalf("bad day: expected validation error, got %v", err)
	}
	if _, _, err := st.AddReminder("Monday", "10:00", "   "); !IsValidation(err) {
		t.Fatalf("blank text: expected validation error, got %v", err)
	}
}

func TestRemoveReminderByText(t *testing.T) {
	st := testStore(t)
	st.AddReminder("Monday", "10:00", "Standup")
	st.AddReminder("Friday", "17:00", "Standup")
	st.AddReminder("Friday", "18:00", "Retro")

	n, snap, err := st.RemoveReminder("Standup")
	if err != nil {
		t.Fatalf("RemoveReminder: %v", err)
	}
	if n != 2 || len(snap.Reminders) != 1 || snap.Reminders[0].Text != "Retro" {
		t.Fatalf("removed=%d reminders=%+v", n, snap.Reminders)
	}

	n, _, err = st.RemoveReminder("Standup")
	if err != nil || n != 0 {
		t.Fatalf("second removal: n=%d err=%v", n, err)
	}
}

func TestSetAdminIsSetOnce(t *testing.T) {
	st := testStore(t)
	if _, err := st.SetAdmin(42); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	if !st.Snapshot().IsAdmin(42) {
		t.Fatal("admin not set")
	}
	// Same id again is fine, a different one is rejected.
	if _, err := st.SetAdmin(42); err != nil {
		t.Fatalf("idempotent SetAdmin: %v", err)
	}
	if _, err := st.SetAdmin(7); !IsValidation(err) {
		t.Fatalf("expected validation error reassigning admin, got %v", err)
	}
}

func TestResetStatsIfNewWeek(t *testing.T) {
	st := testStore(t)
	if err := st.IncrementMessages(); err != nil {
		t.Fatal(err)
	}
	if err := st.IncrementReminders(); err != nil {
		t.Fatal(err)
	}

	// last_reset earlier today: untouched.
	now := time.Now().In(time.UTC)
	reset, err := st.ResetStatsIfNewWeek(now)
	if err != nil || reset {
		t.Fatalf("same week: reset=%v err=%v", reset, err)
	}
	if s := st.Snapshot().Stats; s.MessagesSent != 1 || s.RemindersSent != 1 {
		t.Fatalf("counters changed: %+v", s)
	}

	// last_reset a week and a day in the past: reset and advance.
	reset, err = st.ResetStatsIfNewWeek(now.AddDate(0, 0, 8))
	if err != nil || !reset {
		t.Fatalf("new week: reset=%v err=%v", reset, err)
	}
	s := st.Snapshot().Stats
	if s.MessagesSent != 0 || s.RemindersSent != 0 {
		t.Fatalf("counters not zeroed: %+v", s)
	}
	want := weekStart(now.AddDate(0, 0, 8))
	if !s.LastReset.Equal(want) {
		t.Fatalf("last_reset = %v, want %v", s.LastReset, want)
	}
}

func TestSnapshotIsIsolatedFromStore(t *testing.T) {
	st := testStore(t)
	snap := st.Snapshot()
	snap.Quotes[0] = "tampered"
	snap.MotivationTimes[0] = "00:00"
	if st.Snapshot().Quotes[0] == "tampered" {
		t.Fatal("snapshot mutation leaked into store")
	}
}

func TestYAMLStateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	st, err := Open(path, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.SetSendTimes([]string{"08:30"}); err != nil {
		t.Fatalf("SetSendTimes: %v", err)
	}

	re, err := Open(path, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen yaml: %v", err)
	}
	if got := re.Snapshot().MotivationTimes; len(got) != 1 || got[0] != "08:30" {
		t.Fatalf("yaml roundtrip times = %v", got)
	}
}

func TestSubscribeReceivesScheduleChanges(t *testing.T) {
	st := testStore(t)
	ch := st.Subscribe(4)
	defer st.Unsubscribe(ch)

	if _, err := st.SetSendTimes([]string{"10:00"}); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-ch:
		if len(s.MotivationTimes) != 1 || s.MotivationTimes[0] != "10:00" {
			t.Fatalf("published snapshot: %v", s.MotivationTimes)
		}
	case <-time.After(time.Second):
		t.Fatal("no publish after schedule mutation")
	}

	// Counter bumps must not wake the scheduler.
	if err := st.IncrementMessages(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
		t.Fatal("counter bump published a schedule update")
	case <-time.After(50 * time.Millisecond):
	}
}
