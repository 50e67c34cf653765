// Package scheduler runs configured prompts on cron schedules for the
// daemon.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/daybreak/internal/config"
	"github.com/marcus/daybreak/internal/logging"
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrNoJobs         = errors.New("no jobs configured")
)

// RunFunc executes one scheduled job.
type RunFunc func(ctx context.Context, job config.JobConfig) error

// Scheduler manages cron-scheduled prompt runs.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []config.JobConfig
	run     RunFunc
	cron    *cron.Cron
	logger  *logging.Logger
	running bool
}

// New creates a scheduler that executes jobs with the given run function.
func New(run RunFunc) *Scheduler {
	return &Scheduler{
		run:    run,
		logger: logging.Component("scheduler"),
	}
}

// Load validates and replaces the job set. Safe to call while running;
// the new set takes effect on the next Start or Reload.
func (s *Scheduler) Load(jobs []config.JobConfig) error {
	for _, job := range jobs {
		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			return fmt.Errorf("job %q: invalid schedule %q: %w", job.Name, job.Schedule, err)
		}
	}

	s.mu.Lock()
	s.jobs = jobs
	s.mu.Unlock()
	return nil
}

// Start registers all jobs and begins running them on schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if len(s.jobs) == 0 {
		return ErrNoJobs
	}

	c := cron.New()
	for _, job := range s.jobs {
		job := job
		_, err := c.AddFunc(job.Schedule, func() {
			start := time.Now()
			if err := s.run(ctx, job); err != nil {
				s.logger.Errorf("job %s failed after %s: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
				return
			}
			s.logger.Infof("job %s finished in %s", job.Name, time.Since(start).Round(time.Millisecond))
		})
		if err != nil {
			return fmt.Errorf("schedule job %q: %w", job.Name, err)
		}
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Infof("started with %d jobs", len(s.jobs))
	return nil
}

// Stop halts scheduling. Jobs already running are left to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	s.cron.Stop()
	s.cron = nil
	s.running = false
	s.logger.Info("stopped")
	return nil
}

// Reload swaps in a new job set while running.
func (s *Scheduler) Reload(ctx context.Context, jobs []config.JobConfig) error {
	if err := s.Load(jobs); err != nil {
		return err
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return nil
	}
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start(ctx)
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the earliest upcoming job time, or zero when idle.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cron == nil {
		return time.Time{}
	}

	var next time.Time
	for _, entry := range s.cron.Entries() {
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return next
}

// Jobs returns a copy of the current job set.
func (s *Scheduler) Jobs() []config.JobConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]config.JobConfig, len(s.jobs))
	copy(out, s.jobs)
	return out
}
