package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Scheduler struct {
	instance gocron.Scheduler
	logger   *zap.SugaredLogger
}

// NewScheduler creates a scheduler whose Stop waits up to stopTimeout for
// running jobs to return.
func NewScheduler(clock clockwork.Clock, stopTimeout time.Duration, logger *zap.SugaredLogger) (*Scheduler, error) {
	opts := []gocron.SchedulerOption{gocron.WithStopTimeout(stopTimeout)}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}
	return &Scheduler{instance: s, logger: logger}, nil
}

// AddJob runs job every interval. A run that is still going when the next
// one is due makes the next one wait instead of overlapping.
func (s *Scheduler) AddJob(tag string, interval time.Duration, job func()) error {
	_, err := s.instance.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(job),
		gocron.WithTags(tag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("error adding job %q to scheduler: %w", tag, err)
	}
	s.logger.Infof("Scheduled job %q every %v", tag, interval)
	return nil
}

func (s *Scheduler) Start() {
	s.instance.Start()
	s.logger.Info("Scheduler started")
}

// Stop lets in-flight jobs finish and then stops the scheduler.
func (s *Scheduler) Stop() error {
	if err := s.instance.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}
