// Package scheduler wraps robfig/cron with a worker pool so job bodies
// never run on the cron timer goroutine. The dispatch package decides
// WHAT runs; this package only owns WHEN.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Config struct {
	Workers        int
	DefaultTimeout time.Duration
	Timezone       string // IANA TZ, e.g. "Asia/Jakarta"
}

type Job func(ctx context.Context) error

type task struct {
	name    string
	timeout time.Duration
	run     Job
}

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     Job
	entryID cron.EntryID
}

type JobInfo struct {
	Name string
	Spec string
	Next time.Time
}

type Service struct {
	mu sync.Mutex

	log zerolog.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	queue    chan task
	stopCh   chan struct{}
	workerWG sync.WaitGroup
}

func New(cfg Config, log zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    log.With().Str("comp", "scheduler").Logger(),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Location is the timezone all HH:MM specs are interpreted in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.queue = make(chan task, 64)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// re-register defs surviving a stop/start cycle
	for i := range s.defs {
		s.addCronLocked(&s.defs[i])
	}

	stopCh := s.stopCh
	queue := s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			s.worker(ctx, stopCh, queue, idx)
		}()
	}
	s.c.Start()
	s.log.Info().Int("workers", workers).Str("tz", loc.String()).Msg("scheduler started")
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.stopCh = nil
	c := s.c
	s.c = nil
	s.mu.Unlock()

	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info().Msg("scheduler stopped")
}

// AddDaily registers a job firing every day at HH:MM.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.add(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

// AddWeekly registers a job firing at HH:MM on the given weekday.
func (s *Service) AddWeekly(name string, weekday time.Weekday, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.add(name, fmt.Sprintf("%d %d * * %d", m, h, int(weekday)), timeout, job)
}

// AddInterval registers a job firing every `every`.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) error {
	return s.add(name, fmt.Sprintf("@every %s", every.String()), timeout, job)
}

func (s *Service) add(name, spec string, timeout time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return errors.New("scheduler not started")
	}
	d := jobDef{name: name, spec: spec, timeout: s.resolveTimeout(timeout), run: job}
	if err := s.addCronLocked(&d); err != nil {
		return err
	}
	s.defs = append(s.defs, d)
	return nil
}

// RemoveAll unregisters every job. The schedule is rebuilt from the
// current configuration afterwards.
func (s *Service) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		for _, d := range s.defs {
			s.c.Remove(d.entryID)
		}
	}
	s.defs = nil
}

func (s *Service) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.defs)
}

// Snapshot lists registered jobs with their next fire time.
func (s *Service) Snapshot() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := JobInfo{Name: d.name, Spec: d.spec}
		if s.c != nil {
			info.Next = s.c.Entry(d.entryID).Next
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) addCronLocked(d *jobDef) error {
	name, timeout, run := d.name, d.timeout, d.run
	id, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(task{name: name, timeout: timeout, run: run})
	})
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) enqueue(t task) {
	select {
	case s.queue <- t:
	default:
		s.log.Warn().Str("job", t.name).Msg("scheduler queue full, dropping run")
	}
}

func (s *Service) worker(ctx context.Context, stopCh chan struct{}, queue chan task, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", t.name).Any("panic", r).Str("stack", string(debug.Stack())).Msg("panic in scheduled job")
		}
	}()

	start := time.Now()
	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := t.run(runCtx); err != nil {
		s.log.Warn().Str("job", t.name).Dur("took", time.Since(start)).Err(err).Msg("job failed")
	} else {
		s.log.Debug().Str("job", t.name).Dur("took", time.Since(start)).Msg("job ok")
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn().Str("tz", tz).Err(err).Msg("invalid timezone, falling back to Local")
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}

func parseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
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
