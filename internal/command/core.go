// Package command validates and applies admin mutations. It knows
// nothing about Telegram message formats: the router hands it a caller
// identity, a command name and raw arguments, and gets back either a
// confirmation text or a structured error. Every mutation is
// all-or-nothing against the settings store; a committed change is
// published by the store, which makes the dispatcher rebuild the
// schedule.
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"motivbot/internal/dispatch"
	"motivbot/internal/generate"
	"motivbot/internal/settings"
)

type Caller struct {
	ID int64
	// ChatID is the chat the command was issued in; destination
	// commands bind the bot to it.
	ChatID int64
	IsGroup bool
	// IsGroupAdmin is the caller's administrator rank in ChatID,
	// resolved by the router before dispatch.
	IsGroupAdmin bool
}

type Core struct {
	log   zerolog.Logger
	store *settings.Store
	gen   *generate.Generator
	disp  *dispatch.Dispatcher
}

func New(store *settings.Store, gen *generate.Generator, disp *dispatch.Dispatcher, log zerolog.Logger) *Core {
	return &Core{
		log:   log.With().Str("comp", "command").Logger(),
		store: store,
		gen:   gen,
		disp:  disp,
	}
}

// Execute runs one admin command. args is the raw text after the
// command name. The returned string is the confirmation to display.
func (c *Core) Execute(ctx context.Context, caller Caller, name, args string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	args = strings.TrimSpace(args)

	switch name {
	case "start":
		return c.start(caller)
	case "help":
		return helpText, nil
	case "set_chat":
		return c.setChat(caller)
	case "set_topic":
		return c.setTopic(caller, args)
	case "set_motivation_times":
		return c.setMotivationTimes(caller, args)
	case "set_mode":
		return c.setMode(caller, args)
	case "toggle_ai":
		return c.toggleAI(caller)
	case "add_reminder":
		return c.addReminder(caller, args)
	case "remove_reminder":
		return c.removeReminder(caller, args)
	case "list_reminders":
		return c.listReminders(), nil
	case "add_quote":
		return c.addQuote(caller, args)
	case "quote_now":
		return c.quoteNow(ctx, caller)
	case "show_schedule":
		return c.showSchedule(), nil
	case "summary":
		return c.summary(), nil
	case "ping":
		return c.ping(), nil
	case "test_connection":
		return c.testConnection(ctx, caller)
	default:
		return "", errf(KindUnknown, "unknown command %q, see /help", name)
	}
}

// requireAdmin authorizes a mutation. Destination commands issued
// inside a group also accept group administrators, so a team member can
// bind the bot to a new group without being the fixed admin.
func (c *Core) requireAdmin(caller Caller, destinationCmd bool) *Error {
	snap := c.store.Snapshot()
	if snap.IsAdmin(caller.ID) {
		return nil
	}
	if destinationCmd && caller.IsGroup && caller.IsGroupAdmin {
		return nil
	}
	if snap.AdminID == nil {
		return errf(KindNotConfigured, "no admin configured yet — send /start first")
	}
	return errf(KindUnauthorized, "only the admin can change settings")
}

func (c *Core) start(caller Caller) (string, error) {
	snap := c.store.Snapshot()
	if snap.AdminID == nil {
		if _, err := c.store.SetAdmin(caller.ID); err != nil {
			return "", wrapStoreErr(err)
		}
		c.log.Info().Int64("admin_id", caller.ID).Msg("admin assigned")
		return "👋 Welcome! You've been set as the admin.\n\nUse /help to see all available commands.", nil
	}
	return "👋 Motivation bot is running!\n\nUse /help to see available commands.", nil
}

func (c *Core) setChat(caller Caller) (string, error) {
	if err := c.requireAdmin(caller, true); err != nil {
		return "", err
	}
	if _, err := c.store.SetDestination(caller.ChatID, nil); err != nil {
		return "", wrapStoreErr(err)
	}
	return fmt.Sprintf("✅ Target chat set to: %d\n\nBot will send messages here. Use /set_topic <topic_id> to pick a topic thread.", caller.ChatID), nil
}

func (c *Core) setTopic(caller Caller, args string) (string, error) {
	if err := c.requireAdmin(caller, true); err != nil {
		return "", err
	}
	if args == "" {
		return "", errf(KindValidation, "usage: /set_topic <topic_id>")
	}
	topic, err := strconv.Atoi(strings.Fields(args)[0])
	if err != nil {
		return "", errf(KindValidation, "topic id must be a number")
	}
	if _, err := c.store.SetDestination(caller.ChatID, &topic); err != nil {
		return "", wrapStoreErr(err)
	}
	return fmt.Sprintf("✅ Topic thread ID set to: %d", topic), nil
}

func (c *Core) setMotivationTimes(caller Caller, args string) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	if args == "" {
		return "", errf(KindValidation, "usage: /set_motivation_times 09:00, 14:00, 20:00")
	}
	var times []string
	for _, part := range strings.Split(args, ",") {
		if part = strings.TrimSpace(part); part != "" {
			times = append(times, part)
		}
	}
	snap, err := c.store.SetSendTimes(times)
	if err != nil {
		return "", wrapStoreErr(err)
	}
	return fmt.Sprintf("✅ Motivation times updated: %s\n\nBot will send messages at these times daily.", strings.Join(snap.MotivationTimes, ", ")), nil
}

func (c *Core) setMode(caller Caller, args string) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	mode := settings.Mode(strings.ToLower(args))
	if !mode.Valid() {
		return "", errf(KindValidation, "mode must be %q or %q", settings.ModeAI, settings.ModeManual)
	}
	return c.applyMode(mode)
}

func (c *Core) toggleAI(caller Caller) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	mode := settings.ModeAI
	if c.store.Snapshot().Mode == settings.ModeAI {
		mode = settings.ModeManual
	}
	return c.applyMode(mode)
}

func (c *Core) applyMode(mode settings.Mode) (string, error) {
	if mode == settings.ModeAI && !c.gen.Available() {
		return "", errf(KindNotConfigured, "AI mode needs an OpenAI API key (set OPENAI_API_KEY)")
	}
	if _, err := c.store.SetMode(mode); err != nil {
		return "", wrapStoreErr(err)
	}
	if mode == settings.ModeAI {
		return "✅ Switched to AI-generated motivational messages.", nil
	}
	return "✅ Switched to static quotes.", nil
}

func (c *Core) addReminder(caller Caller, args string) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return "", errf(KindValidation, `usage: /add_reminder Monday 10:00 "Your reminder message"`)
	}
	day, timeStr := fields[0], fields[1]
	text := unquote(strings.TrimSpace(strings.Join(fields[2:], " ")))

	rem, _, err := c.store.AddReminder(day, timeStr, text)
	if err != nil {
		return "", wrapStoreErr(err)
	}
	return fmt.Sprintf("✅ Reminder added for %s %s — %q", rem.Day, rem.Time, rem.Text), nil
}

func (c *Core) removeReminder(caller Caller, args string) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	text := unquote(args)
	if text == "" {
		return "", errf(KindValidation, `usage: /remove_reminder "Your reminder message"`)
	}
	n, _, err := c.store.RemoveReminder(text)
	if err != nil {
		return "", wrapStoreErr(err)
	}
	if n == 0 {
		return "", errf(KindValidation, "no reminder found with text %q", text)
	}
	return fmt.Sprintf("✅ Removed %d reminder(s): %q", n, text), nil
}

func (c *Core) listReminders() string {
	rems := c.store.Snapshot().Reminders
	if len(rems) == 0 {
		return "📋 No reminders scheduled."
	}
	var b strings.Builder
	b.WriteString("📋 Current reminders:\n\n")
	for i, r := range rems {
		fmt.Fprintf(&b, "%d. %s %s → %s\n", i+1, r.Day, r.Time, r.Text)
	}
	return b.String()
}

func (c *Core) addQuote(caller Caller, args string) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	quote := unquote(args)
	if quote == "" {
		return "", errf(KindValidation, `usage: /add_quote "Your quote here"`)
	}
	if _, err := c.store.AddQuote(quote); err != nil {
		return "", wrapStoreErr(err)
	}
	return fmt.Sprintf("✅ Quote added: %q", quote), nil
}

func (c *Core) quoteNow(ctx context.Context, caller Caller) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	if err := c.disp.SendMotivationNow(ctx); err != nil {
		return "", errf(KindInternal, "send failed: %v", err)
	}
	return "✅ Sent motivational message to the group!", nil
}

func (c *Core) showSchedule() string {
	snap := c.store.Snapshot()
	var b strings.Builder
	b.WriteString("📅 Current schedule:\n\n")
	fmt.Fprintf(&b, "Mode: %s\n", strings.ToUpper(string(snap.Mode)))

	if chat, topic, ok := snap.Destination(); ok {
		fmt.Fprintf(&b, "Chat ID: %d\n", chat)
		if topic != 0 {
			fmt.Fprintf(&b, "Topic ID: %d\n", topic)
		}
	} else {
		b.WriteString("⚠️ Chat not set. Use /set_chat in your group.\n")
	}

	fmt.Fprintf(&b, "\nMotivation times: %s\n", strings.Join(snap.MotivationTimes, ", "))
	if len(snap.Reminders) > 0 {
		b.WriteString("\nReminders:\n")
		for _, r := range snap.Reminders {
			fmt.Fprintf(&b, "  • %s %s → %s\n", r.Day, r.Time, r.Text)
		}
	} else {
		b.WriteString("\nReminders: none\n")
	}
	return b.String()
}

func (c *Core) summary() string {
	snap := c.store.Snapshot()
	var b strings.Builder
	b.WriteString("📊 Weekly summary\n\n")
	fmt.Fprintf(&b, "Motivational messages sent: %d\n", snap.Stats.MessagesSent)
	fmt.Fprintf(&b, "Reminders sent: %d\n", snap.Stats.RemindersSent)
	fmt.Fprintf(&b, "\nMode: %s\n", strings.ToUpper(string(snap.Mode)))
	fmt.Fprintf(&b, "Total quotes: %d\n", len(snap.Quotes))
	fmt.Fprintf(&b, "Total reminders: %d\n", len(snap.Reminders))
	return b.String()
}

func (c *Core) ping() string {
	aiStatus := "❌ Not configured"
	if c.gen.Available() {
		aiStatus = "✅ Available"
	}
	jobs := c.disp.ScheduleOverview()
	return fmt.Sprintf("🏓 Bot status\n\nAI generation: %s\nScheduled jobs: %d\nMode: %s\n",
		aiStatus, len(jobs), strings.ToUpper(string(c.store.Snapshot().Mode)))
}

func (c *Core) testConnection(ctx context.Context, caller Caller) (string, error) {
	if err := c.requireAdmin(caller, false); err != nil {
		return "", err
	}
	info, err := c.disp.ProbeDestination(ctx)
	if err != nil {
		return "", errf(KindInternal, "connection test failed: %v", err)
	}
	name := info.Title
	if name == "" {
		name = fmt.Sprintf("%d", info.ID)
	}
	return fmt.Sprintf("✅ Connection verified: %s", name), nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, `'`)
	return strings.TrimSpace(s)
}

const helpText = `🤖 Motivation bot — commands

Configuration:
/set_motivation_times 09:00, 14:00, 20:00 — set daily motivation times
/set_mode ai|manual — switch between AI and static quotes
/set_chat — set this chat as target (use in the group)
/set_topic <topic_id> — set topic thread ID (optional)

Reminders:
/add_reminder Monday 10:00 "Your message" — add weekly reminder
/remove_reminder "Your message" — remove a reminder
/list_reminders — show all reminders

Quotes:
/add_quote "Your quote" — add custom quote
/quote_now — send a motivational message now

Info:
/show_schedule — show current schedule
/summary — show weekly stats
/ping — check bot status
/test_connection — verify the target chat is reachable

Utility:
/toggle_ai — quick toggle AI mode on/off

📝 Note: only the admin can use configuration commands.`
