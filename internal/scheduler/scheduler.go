// Package scheduler re-runs scans on a cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"flag-scanner/internal/errors"
)

// Job is the work run on every tick.
type Job func(ctx context.Context) error

// Status reports what the scheduler has done so far.
type Status struct {
	Running bool
	Runs    int
	Skipped int
	LastRun time.Time
	LastErr error
	Next    time.Time
}

// Scheduler runs a single job on a cron schedule. Ticks that arrive while the
// previous run is still in progress are skipped.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     Job
	logger  zerolog.Logger
	entryID cron.EntryID

	runMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	runs    int
	skipped int
	lastRun time.Time
	lastErr error
}

// parser accepts standard five-field specs, an optional leading seconds
// field, and descriptors such as "@every 15m" or "@hourly".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a scheduler for spec. The spec is validated immediately.
func New(spec string, job Job, logger zerolog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.NewConfigError("schedule.job", nil, "job is required")
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		spec:   spec,
		job:    job,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, errors.NewConfigError("schedule.cron", spec, err.Error())
	}
	s.entryID = id
	return s, nil
}

// Start begins firing the job. ctx is passed to every run and cancelling it
// stops further runs from doing work.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.ErrSchedulerState
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Time("next", s.cron.Entry(s.entryID).Next).Msg("Scheduler started")
	return nil
}

// Stop stops the schedule and waits for a run in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunNow runs the job immediately in the caller's goroutine. It returns
// ErrSchedulerState when a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return errors.Wrap(errors.ErrSchedulerState, "run in progress")
	}
	defer s.runMu.Unlock()
	return s.run(ctx)
}

// Status returns a snapshot of the run counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running: s.started,
		Runs:    s.runs,
		Skipped: s.skipped,
		LastRun: s.lastRun,
		LastErr: s.lastErr,
	}
	if s.started {
		st.Next = s.cron.Entry(s.entryID).Next
	}
	return st
}

func (s *Scheduler) tick() {
	if !s.runMu.TryLock() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous run still in progress, skipping tick")
		return
	}
	defer s.runMu.Unlock()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) error {
	started := time.Now()
	err := s.job(ctx)

	s.mu.Lock()
	s.runs++
	s.lastRun = started
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Dur("duration", time.Since(started)).Msg("Scheduled run failed")
		return err
	}
	s.logger.Debug().Dur("duration", time.Since(started)).Msg("Scheduled run completed")
	return nil
}
