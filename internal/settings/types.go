// Package settings owns the bot's persisted configuration document:
// who the admin is, where scheduled messages go, when they go out, and
// what content they carry. All mutation goes through the Store; readers
// work on snapshots and never see a half-applied change.
package settings

import "time"

// Mode selects the motivational content source.
type Mode string

const (
	// ModeManual serves quotes from the stored library.
	ModeManual Mode = "manual"
	// ModeAI asks the remote generator, falling back to the library.
	ModeAI Mode = "ai"
)

func (m Mode) Valid() bool { return m == ModeManual || m == ModeAI }

// Reminder is a weekly slot with fixed literal text. The (Day, Time,
// Text) triple is unique within the document.
type Reminder struct {
	Day  string `json:"day" yaml:"day"`
	Time string `json:"time" yaml:"time"`
	Text string `json:"text" yaml:"text"`
}

type Stats struct {
	MessagesSent  int       `json:"messages_sent" yaml:"messages_sent"`
	RemindersSent int       `json:"reminders_sent" yaml:"reminders_sent"`
	LastReset     time.Time `json:"last_reset" yaml:"last_reset"`
}

// Settings is the persisted document. Field names are the wire format;
// do not rename without migrating existing state files.
type Settings struct {
	AdminID         *int64     `json:"admin_id" yaml:"admin_id"`
	ChatID          *int64     `json:"chat_id" yaml:"chat_id"`
	TopicID         *int       `json:"topic_id" yaml:"topic_id"`
	MotivationTimes []string   `json:"motivation_times" yaml:"motivation_times"`
	Mode            Mode       `json:"mode" yaml:"mode"`
	Reminders       []Reminder `json:"reminders" yaml:"reminders"`
	Quotes          []string   `json:"quotes" yaml:"quotes"`
	Stats           Stats      `json:"stats" yaml:"stats"`
}

// Defaults mirrors the document created on first boot.
func Defaults(now time.Time) *Settings {
	return &Settings{
		MotivationTimes: []string{"09:00", "14:00", "20:00"},
		Mode:            ModeManual,
		Reminders:       []Reminder{},
		Quotes: []string{
			"Team, remember why we started: making education free and accessible for everyone. Keep building! 🚀",
			"Amirbek, Manuchehr, Asiljon - every line of code brings us closer to our educational empire. Keep pushing! 💪",
			"We're not just building an app - we're giving people hope through education. Let's keep going! ✨",
			"Every person who learns through our platform is a win for our mission. Stay focused, team! 🎯",
			"Education should be free. Learning should be loved. Let's make it happen together! 🔥",
		},
		Stats: Stats{LastReset: now},
	}
}

// Clone deep-copies the document so readers can hold it without racing
// later mutations.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	if s.AdminID != nil {
		v := *s.AdminID
		out.AdminID = &v
	}
	if s.ChatID != nil {
		v := *s.ChatID
		out.ChatID = &v
	}
	if s.TopicID != nil {
		v := *s.TopicID
		out.TopicID = &v
	}
	out.MotivationTimes = append([]string(nil), s.MotivationTimes...)
	out.Reminders = append([]Reminder(nil), s.Reminders...)
	out.Quotes = append([]string(nil), s.Quotes...)
	return &out
}

// Destination returns the configured target chat, if any. TopicID is 0
// when the destination is not a forum thread.
func (s *Settings) Destination() (chatID int64, topicID int, ok bool) {
	if s == nil || s.ChatID == nil {
		return 0, 0, false
	}
	if s.TopicID != nil {
		topicID = *s.TopicID
	}
	return *s.ChatID, topicID, true
}

// IsAdmin reports whether id is the configured admin. An unconfigured
// document has no admin, so this is false for everyone.
func (s *Settings) IsAdmin(id int64) bool {
	return s != nil && s.AdminID != nil && *s.AdminID == id
}
