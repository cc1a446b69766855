// Package app assembles the bot: configuration, logging, the settings
// store, the schedule dispatcher, the Telegram adapter and router, and
// the health sidecar. Run blocks until the context is canceled, then
// tears everything down in reverse order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"motivbot/internal/command"
	"motivbot/internal/dispatch"
	"motivbot/internal/generate"
	"motivbot/internal/health"
	"motivbot/internal/logging"
	"motivbot/internal/metrics"
	"motivbot/internal/scheduler"
	"motivbot/internal/settings"
	"motivbot/internal/telegram"
	"motivbot/internal/transport"
	transporttg "motivbot/internal/transport/telegram"
)

const updateBuffer = 256

type App struct {
	cfg Config
	log zerolog.Logger

	logCloser io.Closer

	store   *settings.Store
	adapter *transporttg.Adapter
	gen     *generate.Generator
	sched   *scheduler.Service
	disp    *dispatch.Dispatcher
	router  *telegram.Router
	health  *health.Service

	registry *prometheus.Registry
	updates  chan transport.Message
}

func New(cfg Config) (*App, error) {
	log, closer := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Console: cfg.AppEnv != "prod",
		File:    cfg.LogFile,
	})
	log = log.With().Str("comp", "app").Logger()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("timezone: %w", err)
	}

	store, err := settings.Open(cfg.StateFile, loc, log)
	if err != nil {
		closer.Close()
		if errors.Is(err, settings.ErrCorrupt) {
			return nil, fmt.Errorf("state file %s is corrupt, refusing to start (fix or remove it): %w", cfg.StateFile, err)
		}
		return nil, fmt.Errorf("open settings: %w", err)
	}

	adapter, err := transporttg.New(transporttg.Config{
		Token:          cfg.BotToken,
		PollTimeout:    cfg.PollTimeout,
		SendRatePerSec: cfg.SendRatePerSec,
	}, log)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	gen := generate.New(generate.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	}, log)

	sched := scheduler.New(scheduler.Config{
		Workers:  2,
		Timezone: cfg.Timezone,
	}, log)

	disp := dispatch.New(store, gen, adapter, sched, log)
	core := command.New(store, gen, disp, log)
	router := telegram.NewRouter(adapter, core, adapter.BotName(), log)

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		cfg:       cfg,
		log:       log,
		logCloser: closer,
		store:     store,
		adapter:   adapter,
		gen:       gen,
		sched:     sched,
		disp:      disp,
		router:    router,
		health:    health.New(health.Config{Addr: cfg.HealthAddr}, log),
		registry:  registry,
		updates:   make(chan transport.Message, updateBuffer),
	}, nil
}

// Run starts every component and blocks until ctx is canceled. The
// returned error is the startup failure, if any; a clean shutdown
// returns nil.
func (a *App) Run(ctx context.Context) error {
	defer a.logCloser.Close()

	a.log.Info().
		Str("env", a.cfg.AppEnv).
		Str("tz", a.cfg.Timezone).
		Str("state", a.cfg.StateFile).
		Bool("ai", a.gen.Available()).
		Msg("starting")

	if a.cfg.AdminID != 0 {
		if _, err := a.store.SetAdmin(a.cfg.AdminID); err != nil {
			// Already claimed by someone else; the stored admin wins.
			a.log.Warn().Err(err).Int64("admin_id", a.cfg.AdminID).Msg("ADMIN_ID ignored")
		}
	}

	if err := a.health.Start(ctx, a.registry); err != nil {
		return err
	}
	defer a.health.Stop(context.Background())

	a.sched.Start(ctx)
	defer a.sched.Stop(context.Background())

	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.adapter.Stop(sctx)
	}()

	a.disp.Rebuild()
	go a.disp.Run(ctx)

	go func() {
		if err := a.store.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn().Err(err).Msg("state file watcher stopped")
		}
	}()

	if _, _, ok := a.store.Snapshot().Destination(); ok {
		go a.startupProbe(ctx)
	}

	a.router.Run(ctx, a.updates)
	a.log.Info().Msg("shutting down")
	return nil
}

// startupProbe verifies the configured destination is still reachable
// after a restart. Failure is logged, not fatal; the chat may simply
// be unavailable right now.
func (a *App) startupProbe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	info, err := a.disp.ProbeDestination(pctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("destination probe failed")
		return
	}
	a.log.Info().Int64("chat_id", info.ID).Str("title", info.Title).Msg("destination reachable")
}
