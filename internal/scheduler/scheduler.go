// Package scheduler runs recurring background jobs, currently the periodic
// risk limit sweep across all known portfolios.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ScheduledJob is one recurring unit of work.
type ScheduledJob struct {
	Name     string
	Schedule string // Cron expression with seconds field
	Handler  func(ctx context.Context) error
}

// Scheduler wraps the cron runner with per-job timeouts and logging.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	jobs    []ScheduledJob
	log     zerolog.Logger
}

// NewScheduler creates a new job scheduler
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers a job under its cron schedule.
func (s *Scheduler) AddJob(job ScheduledJob) error {
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		s.log.Info().Str("job", job.Name).Msg("Executing scheduled job")
		if err := job.Handler(ctx); err != nil {
			s.log.Error().Err(err).Str("job", job.Name).Msg("Scheduled job failed")
		}
	})
	if err != nil {
		return err
	}

	s.entries[job.Name] = entryID
	s.jobs = append(s.jobs, job)
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Job scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Job scheduler stopped")
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []ScheduledJob {
	out := make([]ScheduledJob, len(s.jobs))
	copy(out, s.jobs)
	return out
}
