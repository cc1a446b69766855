package settings

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store is the single source of truth for the bot's configuration.
//
// Mutations run one at a time under mu: validate, apply to a copy,
// persist the copy, then commit it. A failed persist leaves the
// previous document in place, so readers never observe an unsaved
// change. Slow work (generation, network sends) happens on snapshots,
// outside the lock.
type Store struct {
	path string
	loc  *time.Location
	log  zerolog.Logger

	mu       sync.RWMutex
	cur      *Settings
	lastHash uint64

	// subsMu guards the subscriber list and ensures we never send on a
	// channel that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan *Settings

	now func() time.Time
}

// Open loads the document at path, creating defaults in memory when the
// file does not exist yet. A file that exists but cannot be decoded, or
// that decodes to invalid values, is a hard error wrapping ErrCorrupt;
// the file is never rewritten here.
func Open(path string, loc *time.Location, log zerolog.Logger) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	st := &Store{
		path: path,
		loc:  loc,
		log:  log.With().Str("comp", "settings").Logger(),
		now:  func() time.Time { return time.Now().In(loc) },
	}

	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		st.cur = Defaults(st.now())
		st.log.Info().Str("path", path).Msg("no state file, starting with defaults")
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		s, derr := loadDocument(path, b)
		if derr != nil {
			return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, derr)
		}
		st.cur = s
		st.lastHash = hashSettings(s)
		st.log.Info().Str("path", path).Int("quotes", len(s.Quotes)).Int("reminders", len(s.Reminders)).Msg("state loaded")
	}
	return st, nil
}

func (st *Store) Path() string             { return st.path }
func (st *Store) Location() *time.Location { return st.loc }

// Snapshot returns a deep copy for readers.
func (st *Store) Snapshot() *Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cur.Clone()
}

// Subscribe returns a channel receiving a snapshot after every change
// that affects the schedule (admin mutations and external file edits;
// counter bumps are excluded).
func (st *Store) Subscribe(buffer int) chan *Settings {
	ch := make(chan *Settings, buffer)
	st.subsMu.Lock()
	st.subs = append(st.subs, ch)
	st.subsMu.Unlock()
	return ch
}

func (st *Store) Unsubscribe(ch chan *Settings) {
	if ch == nil {
		return
	}
	st.subsMu.Lock()
	defer st.subsMu.Unlock()
	for i, s := range st.subs {
		if s == ch {
			last := len(st.subs) - 1
			st.subs[i] = st.subs[last]
			st.subs[last] = nil
			st.subs = st.subs[:last]
			close(ch)
			return
		}
	}
}

// ---- mutations ----

// SetAdmin assigns the admin once. Re-assigning the same id is a no-op;
// assigning a different one is rejected (reset happens outside the
// running process, by editing the state file).
func (st *Store) SetAdmin(id int64) (*Settings, error) {
	return st.mutate(true, func(s *Settings) error {
		if s.AdminID != nil {
			if *s.AdminID == id {
				return errNoop
			}
			return validationErr("admin_id", "already assigned to %d", *s.AdminID)
		}
		s.AdminID = &id
		return nil
	})
}

// SetDestination binds the target chat. A nil topicID clears any
// previously set thread, matching "set chat without topic resets it".
func (st *Store) SetDestination(chatID int64, topicID *int) (*Settings, error) {
	return st.mutate(true, func(s *Settings) error {
		if chatID == 0 {
			return validationErr("chat_id", "must be a real chat id")
		}
		s.ChatID = &chatID
		if topicID != nil {
			if *topicID <= 0 {
				return validationErr("topic_id", "must be a positive thread id")
			}
			v := *topicID
			s.TopicID = &v
		} else {
			s.TopicID = nil
		}
		return nil
	})
}

// SetSendTimes replaces the daily schedule. Values must already be in
// zero-padded HH:MM form ("9:00" is rejected, not repaired); the list
// is deduplicated preserving first occurrence, and one bad value
// rejects the whole list.
func (st *Store) SetSendTimes(times []string) (*Settings, error) {
	return st.mutate(true, func(s *Settings) error {
		if len(times) == 0 {
			return validationErr("motivation_times", "need at least one HH:MM value")
		}
		accepted := make([]string, 0, len(times))
		seen := map[string]bool{}
		for _, t := range times {
			n := strings.TrimSpace(t)
			if _, _, err := ParseHHMM(n); err != nil {
				return validationErr("motivation_times", "%v", err)
			}
			if seen[n] {
				continue
			}
			seen[n] = true
			accepted = append(accepted, n)
		}
		s.MotivationTimes = accepted
		return nil
	})
}

func (st *Store) SetMode(mode Mode) (*Settings, error) {
	return st.mutate(true, func(s *Settings) error {
		if !mode.Valid() {
			return validationErr("mode", "must be %q or %q", ModeAI, ModeManual)
		}
		s.Mode = mode
		return nil
	})
}

// AddReminder appends a weekly slot. The (day, time, text) triple must
// be unique; a duplicate is rejected explicitly so the admin learns the
// slot already exists.
func (st *Store) AddReminder(day, timeStr, text string) (Reminder, *Settings, error) {
	var added Reminder
	snap, err := st.mutate(true, func(s *Settings) error {
		d, ok := CanonicalDay(day)
		if !ok {
			return validationErr("day", "%q is not a weekday name", day)
		}
		t := strings.TrimSpace(timeStr)
		if _, _, terr := ParseHHMM(t); terr != nil {
			return validationErr("time", "%v", terr)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return validationErr("text", "reminder text is empty")
		}
		for _, r := range s.Reminders {
			if r.Day == d && r.Time == t && r.Text == text {
				return validationErr("reminder", "identical reminder already exists")
			}
		}
		added = Reminder{Day: d, Time: t, Text: text}
		s.Reminders = append(s.Reminders, added)
		return nil
	})
	return added, snap, err
}

// RemoveReminder drops every reminder whose text matches exactly.
// Returns how many were removed; zero is not an error.
func (st *Store) RemoveReminder(text string) (int, *Settings, error) {
	text = strings.TrimSpace(text)
	removed := 0
	snap, err := st.mutate(true, func(s *Settings) error {
		if text == "" {
			return validationErr("text", "reminder text is empty")
		}
		kept := s.Reminders[:0:0]
		for _, r := range s.Reminders {
			if r.Text == text {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if removed == 0 {
			return errNoop
		}
		s.Reminders = kept
		return nil
	})
	return removed, snap, err
}

func (st *Store) AddQuote(text string) (*Settings, error) {
	return st.mutate(false, func(s *Settings) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return validationErr("quote", "quote text is empty")
		}
		s.Quotes = append(s.Quotes, text)
		return nil
	})
}

// IncrementMessages bumps the motivational-message counter. Counter
// bumps persist but do not notify subscribers: the schedule is
// unaffected.
func (st *Store) IncrementMessages() error {
	_, err := st.mutate(false, func(s *Settings) error {
		s.Stats.MessagesSent++
		return nil
	})
	return err
}

func (st *Store) IncrementReminders() error {
	_, err := st.mutate(false, func(s *Settings) error {
		s.Stats.RemindersSent++
		return nil
	})
	return err
}

// ResetStatsIfNewWeek zeroes the counters when last_reset predates the
// current week's Monday 00:00 (store timezone). Returns whether a reset
// happened.
func (st *Store) ResetStatsIfNewWeek(now time.Time) (bool, error) {
	boundary := weekStart(now.In(st.loc))
	reset := false
	_, err := st.mutate(false, func(s *Settings) error {
		if !s.Stats.LastReset.Before(boundary) {
			return errNoop
		}
		s.Stats.MessagesSent = 0
		s.Stats.RemindersSent = 0
		s.Stats.LastReset = boundary
		reset = true
		return nil
	})
	return reset, err
}

// ---- internals ----

// errNoop short-circuits a mutation that decided nothing needs to
// change: no write, no publish, no error for the caller.
var errNoop = fmt.Errorf("settings: no change")

func (st *Store) mutate(notify bool, fn func(*Settings) error) (*Settings, error) {
	st.mu.Lock()
	next := st.cur.Clone()
	if err := fn(next); err != nil {
		st.mu.Unlock()
		if err == errNoop {
			return next, nil
		}
		return nil, err
	}
	if err := st.saveLocked(next); err != nil {
		st.mu.Unlock()
		return nil, &PersistError{Path: st.path, Err: err}
	}
	st.cur = next
	st.lastHash = hashSettings(next)
	st.mu.Unlock()

	if notify {
		st.publish(next.Clone())
	}
	return next.Clone(), nil
}

// saveLocked writes the document atomically: temp file in the same
// directory, then rename. A crash mid-write can only ever leave a stray
// temp file, never a truncated document.
func (st *Store) saveLocked(s *Settings) error {
	b, err := encode(st.path, s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, st.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	st.log.Debug().Str("path", st.path).Int("bytes", len(b)).Msg("state saved")
	return nil
}

// commitExternal installs a document reloaded from disk (operator
// edit). The watcher validates through parseFile first; this only
// commits and skips publish when content is unchanged.
func (st *Store) commitExternal(s *Settings) bool {
	h := hashSettings(s)
	st.mu.Lock()
	if h != 0 && h == st.lastHash {
		st.mu.Unlock()
		return false
	}
	st.cur = s
	st.lastHash = h
	st.mu.Unlock()
	st.publish(s.Clone())
	return true
}

func (st *Store) parseFile() (*Settings, error) {
	b, err := os.ReadFile(st.path)
	if err != nil {
		return nil, err
	}
	return loadDocument(st.path, b)
}

// loadDocument is the parse-validate half of every load from disk:
// decode, repair nil slices, then apply the semantic rules. Both Open
// and the watcher go through it, so a hand-edited file faces the same
// checks as an admin mutation.
func loadDocument(path string, b []byte) (*Settings, error) {
	s, err := decode(path, b)
	if err != nil {
		return nil, err
	}
	normalize(s)
	if err := validateDocument(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (st *Store) publish(s *Settings) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	st.subsMu.Lock()
	defer st.subsMu.Unlock()
	for _, ch := range st.subs {
		if ch == nil {
			continue
		}
		// Deliver the latest document. If the subscriber is slow, drop
		// one stale item and push the newest instead.
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
				st.log.Debug().Int("queue_cap", cap(ch)).Msg("settings update dropped (subscriber slow)")
			}
		}
	}
}

// normalize repairs nil slices and invalid enum values in documents
// written by hand.
func normalize(s *Settings) {
	if s.MotivationTimes == nil {
		s.MotivationTimes = []string{}
	}
	if s.Reminders == nil {
		s.Reminders = []Reminder{}
	}
	if s.Quotes == nil {
		s.Quotes = []string{}
	}
	if !s.Mode.Valid() {
		s.Mode = ModeManual
	}
}

func hashSettings(s *Settings) uint64 {
	if s == nil {
		return 0
	}
	b, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
