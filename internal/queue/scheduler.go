package queue

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SweepFunc is a periodic maintenance task run outside the event-debounce
// path, such as the health-check sweep.
type SweepFunc func(ctx context.Context)

// Scheduler is the queue worker's time-based companion: cron-cadenced
// sweeps that run independently of domain-event debouncing.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler builds an empty, unstarted scheduler.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "queue_scheduler").Logger(),
	}
}

// Register adds a cron-scheduled sweep. spec is a standard 5-field cron
// expression. Registration errors (malformed spec) are returned immediately
// so callers fail fast at startup rather than silently dropping a sweep.
func (s *Scheduler) Register(name, spec string, fn SweepFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Debug().Str("sweep", name).Msg("running scheduled sweep")
		fn(context.Background())
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("sweep", name).Str("schedule", spec).Msg("registered sweep")
	return nil
}

// Start begins running registered sweeps on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for any in-flight sweep to finish, then stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("queue scheduler stopped")
}
