package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatchPublishesExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	st, err := Open(path, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// First mutation creates the file the watcher will see change.
	if _, err := st.SetSendTimes([]string{"09:00"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Watch(ctx)
	}()
	// Give fsnotify time to register the directory.
	time.Sleep(100 * time.Millisecond)

	ch := st.Subscribe(4)
	defer st.Unsubscribe(ch)

	edited := `{
  "admin_id": null,
  "chat_id": -100555,
  "topic_id": null,
  "motivation_times": ["21:00"],
  "mode": "manual",
  "reminders": [],
  "quotes": ["edited"],
  "stats": {"messages_sent": 0, "reminders_sent": 0, "last_reset": "2026-01-05T00:00:00Z"}
}`
	if err := os.WriteFile(path, []byte(edited), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-ch:
		if len(s.MotivationTimes) != 1 || s.MotivationTimes[0] != "21:00" {
			t.Fatalf("reloaded times = %v", s.MotivationTimes)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("external edit was not published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop on cancel")
	}
}

func TestWatchKeepsLastGoodOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	st, err := Open(path, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.SetSendTimes([]string{"09:00"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = st.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// A file that does not parse, then one that parses but carries
	// out-of-range values. Neither may replace the live document.
	for _, doc := range []string{
		"{broken",
		`{"motivation_times": ["25:99", "abc"], "reminders": [{"day": "Funday", "time": "10:00", "text": "x"}]}`,
	} {
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatal(err)
		}
		// Wait past the debounce window, then confirm nothing changed.
		time.Sleep(600 * time.Millisecond)
		if got := st.Snapshot().MotivationTimes; len(got) != 1 || got[0] != "09:00" {
			t.Fatalf("bad edit %q replaced state: %v", doc, got)
		}
	}
}
