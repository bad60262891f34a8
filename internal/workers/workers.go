package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"quotr/internal/pkg/logger"
	"quotr/internal/platform/config"
)

// TemplatePurger removes soft-deleted default quota templates.
type TemplatePurger interface {
	PurgeDeletedTemplates(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron      *cron.Cron
	purger    TemplatePurger
	retention time.Duration
	timeout   time.Duration
	log       zerolog.Logger
}

func NewScheduler(purger TemplatePurger, cfg config.WorkerConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		purger:    purger,
		retention: cfg.Retention,
		timeout:   10 * time.Minute,
		log:       logger.For("worker"),
	}

	if _, err := s.cron.AddFunc(cfg.PurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.PurgeTemplates(ctx); err != nil {
			s.log.Error().Err(err).Msg("template purge failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule template purge %q: %w", cfg.PurgeSchedule, err)
	}

	return s, nil
}

// PurgeTemplates drops templates deleted longer ago than the retention.
func (s *Scheduler) PurgeTemplates(ctx context.Context) error {
	start := time.Now()
	n, err := s.purger.PurgeDeletedTemplates(ctx, s.retention)
	if err != nil {
		return err
	}
	s.log.Info().
		Int64("purged", n).
		Dur("retention", s.retention).
		Dur("duration", time.Since(start)).
		Msg("template purge finished")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info().Time("next", e.Next).Msg("job scheduled")
	}
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
