// Package dispatch owns the bot's job semantics: it derives the job
// set from the current settings document and performs the actual
// sends when jobs fire. Jobs are ephemeral; Rebuild recomputes them
// from scratch after every configuration change.
package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"motivbot/internal/generate"
	"motivbot/internal/metrics"
	"motivbot/internal/scheduler"
	"motivbot/internal/settings"
	"motivbot/internal/transport"
)

const (
	jobTimeout  = 2 * time.Minute
	sendTimeout = 30 * time.Second

	// statsCheckEvery bounds how stale the weekly counters can get on a
	// quiet schedule; every fire also checks.
	statsCheckEvery = time.Hour
)

type Dispatcher struct {
	log     zerolog.Logger
	store   *settings.Store
	gen     *generate.Generator
	adapter transport.Adapter
	sched   *scheduler.Service

	now func() time.Time
}

func New(store *settings.Store, gen *generate.Generator, adapter transport.Adapter, sched *scheduler.Service, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		log:     log.With().Str("comp", "dispatch").Logger(),
		store:   store,
		gen:     gen,
		adapter: adapter,
		sched:   sched,
		now:     time.Now,
	}
}

// Run rebuilds the schedule whenever the store publishes a change.
// Blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ch := d.store.Subscribe(4)
	defer d.store.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			d.Rebuild()
		}
	}
}

// Rebuild drops every registered job and re-registers the set implied
// by the current snapshot: one daily job per motivation time, one
// weekly job per reminder, plus the hourly stats-rollover check.
// Idempotent: the same snapshot always yields the same job set.
func (d *Dispatcher) Rebuild() {
	snap := d.store.Snapshot()
	d.sched.RemoveAll()

	for _, at := range snap.MotivationTimes {
		at := at
		id := "motivation_" + strings.ReplaceAll(at, ":", "_")
		if err := d.sched.AddDaily(id, at, jobTimeout, d.fireMotivation); err != nil {
			d.log.Error().Str("job", id).Err(err).Msg("failed to register daily job")
		}
	}

	for _, rem := range snap.Reminders {
		rem := rem
		weekday, ok := settings.DayWeekday(rem.Day)
		if !ok {
			d.log.Error().Str("day", rem.Day).Msg("reminder with unknown day, skipping")
			continue
		}
		id := reminderJobID(rem)
		job := func(ctx context.Context) error { return d.fireReminder(ctx, rem) }
		if err := d.sched.AddWeekly(id, weekday, rem.Time, jobTimeout, job); err != nil {
			d.log.Error().Str("job", id).Err(err).Msg("failed to register weekly job")
		}
	}

	if err := d.sched.AddInterval("stats_rollover", statsCheckEvery, time.Minute, d.checkStatsRollover); err != nil {
		d.log.Error().Err(err).Msg("failed to register stats rollover check")
	}

	d.log.Info().
		Int("motivation_jobs", len(snap.MotivationTimes)).
		Int("reminder_jobs", len(snap.Reminders)).
		Msg("schedule rebuilt")
}

func reminderJobID(r settings.Reminder) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(r.Text))
	return fmt.Sprintf("reminder_%s_%s_%08x", r.Day, strings.ReplaceAll(r.Time, ":", "_"), h.Sum32())
}

// fireMotivation runs one daily send. It reads the CURRENT snapshot,
// so edits made after registration take effect immediately.
func (d *Dispatcher) fireMotivation(ctx context.Context) error {
	snap := d.store.Snapshot()
	d.rolloverStats()

	chatID, topicID, ok := snap.Destination()
	if !ok {
		metrics.JobsSkipped.Inc()
		d.log.Info().Msg("destination not configured, skipping motivational send")
		return nil
	}

	text := d.gen.Message(ctx, snap)

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	to := transport.ChatTarget{ChatID: chatID, ThreadID: topicID}
	if err := d.adapter.SendText(sctx, to, text, nil); err != nil {
		metrics.DeliveryFailures.WithLabelValues("motivation").Inc()
		return fmt.Errorf("send motivation to %d: %w", chatID, err)
	}

	metrics.MessagesSent.Inc()
	if err := d.store.IncrementMessages(); err != nil {
		d.log.Error().Err(err).Msg("sent message but could not persist counter")
	}
	d.log.Info().Int64("chat_id", chatID).Msg("motivational message sent")
	return nil
}

// fireReminder delivers the literal reminder text. The slot must still
// exist in the current snapshot; a reminder removed after registration
// but before the rebuild landed is skipped.
func (d *Dispatcher) fireReminder(ctx context.Context, rem settings.Reminder) error {
	snap := d.store.Snapshot()
	d.rolloverStats()

	if !containsReminder(snap.Reminders, rem) {
		d.log.Debug().Str("text", rem.Text).Msg("reminder no longer configured, skipping")
		return nil
	}

	chatID, topicID, ok := snap.Destination()
	if !ok {
		metrics.JobsSkipped.Inc()
		d.log.Info().Str("text", rem.Text).Msg("destination not configured, skipping reminder")
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	to := transport.ChatTarget{ChatID: chatID, ThreadID: topicID}
	if err := d.adapter.SendText(sctx, to, rem.Text, nil); err != nil {
		metrics.DeliveryFailures.WithLabelValues("reminder").Inc()
		return fmt.Errorf("send reminder to %d: %w", chatID, err)
	}

	metrics.RemindersSent.Inc()
	if err := d.store.IncrementReminders(); err != nil {
		d.log.Error().Err(err).Msg("sent reminder but could not persist counter")
	}
	d.log.Info().Int64("chat_id", chatID).Str("day", rem.Day).Str("time", rem.Time).Msg("reminder sent")
	return nil
}

func containsReminder(rs []settings.Reminder, r settings.Reminder) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func (d *Dispatcher) checkStatsRollover(ctx context.Context) error {
	d.rolloverStats()
	return nil
}

func (d *Dispatcher) rolloverStats() {
	reset, err := d.store.ResetStatsIfNewWeek(d.now())
	if err != nil {
		d.log.Error().Err(err).Msg("weekly stats reset failed to persist")
		return
	}
	if reset {
		d.log.Info().Msg("weekly stats reset")
	}
}

// SendMotivationNow performs an immediate on-demand send (the
// /quote_now command). Unlike a scheduled fire, an unset destination
// is an error here because an admin is waiting for the answer.
func (d *Dispatcher) SendMotivationNow(ctx context.Context) error {
	snap := d.store.Snapshot()
	chatID, topicID, ok := snap.Destination()
	if !ok {
		return fmt.Errorf("destination chat is not configured")
	}

	text := d.gen.Message(ctx, snap)
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := d.adapter.SendText(sctx, transport.ChatTarget{ChatID: chatID, ThreadID: topicID}, text, nil); err != nil {
		metrics.DeliveryFailures.WithLabelValues("motivation").Inc()
		return err
	}
	metrics.MessagesSent.Inc()
	if err := d.store.IncrementMessages(); err != nil {
		d.log.Error().Err(err).Msg("sent message but could not persist counter")
	}
	return nil
}

// ProbeDestination verifies the configured chat is reachable and sends
// a short test message. Used by /test_connection and the startup probe.
func (d *Dispatcher) ProbeDestination(ctx context.Context) (transport.ChatInfo, error) {
	snap := d.store.Snapshot()
	chatID, topicID, ok := snap.Destination()
	if !ok {
		return transport.ChatInfo{}, fmt.Errorf("destination chat is not configured")
	}

	cctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	info, err := d.adapter.ChatInfo(cctx, chatID)
	if err != nil {
		return transport.ChatInfo{}, fmt.Errorf("chat %d unreachable: %w", chatID, err)
	}

	to := transport.ChatTarget{ChatID: chatID, ThreadID: topicID}
	if err := d.adapter.SendText(cctx, to, "✅ Bot connection test successful! Ready to send scheduled messages.", nil); err != nil {
		return info, fmt.Errorf("test message to %d failed: %w", chatID, err)
	}
	return info, nil
}

// ScheduleOverview exposes the registered job set for /show_schedule.
func (d *Dispatcher) ScheduleOverview() []scheduler.JobInfo {
	return d.sched.Snapshot()
}
