package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"shop-post-bot/internal/metrics"
	"shop-post-bot/internal/moderation"
	"shop-post-bot/internal/storage"
)

const DispatcherJobTag = "publication-dispatcher"

type DueLister interface {
	ListScheduledDue(ctx context.Context, before time.Time) ([]*storage.Listing, error)
}

type Publisher interface {
	PublishDue(ctx context.Context, listingID int64) error
}

// Dispatcher publishes approved listings whose scheduled time has arrived.
type Dispatcher struct {
	store     DueLister
	publisher Publisher
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	ctx       context.Context
}

// NewDispatcher returns a dispatcher whose ticks stop starting once ctx is
// cancelled.
func NewDispatcher(ctx context.Context, store DueLister, publisher Publisher, clock clockwork.Clock, m *metrics.Metrics, logger *zap.SugaredLogger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		clock:     clock,
		metrics:   m,
		logger:    logger,
		ctx:       ctx,
	}
}

// Register adds the dispatcher to s as a recurring job.
func (d *Dispatcher) Register(s *Scheduler, interval time.Duration) error {
	return s.AddJob(DispatcherJobTag, interval, func() { d.Tick(d.ctx) })
}

// Tick publishes every due listing once. Failures are logged and never stop
// the tick or later ticks. It returns the number of listings published.
// A cancelled ctx keeps a new tick from starting; a running tick always
// finishes its publications.
func (d *Dispatcher) Tick(ctx context.Context) (published int) {
	if ctx.Err() != nil {
		return 0
	}
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("Dispatcher: recovered from panic: %v", r)
		}
	}()
	d.metrics.SchedulerTick()

	due, err := d.store.ListScheduledDue(ctx, d.clock.Now())
	if err != nil {
		d.logger.Errorf("Dispatcher: failed to list due listings: %v", err)
		return 0
	}
	if len(due) == 0 {
		return 0
	}
	d.logger.Infof("Dispatcher: %d listing(s) due for publication", len(due))

	for _, l := range due {
		if err := d.publishOne(ctx, l.ID); err != nil {
			switch {
			case errors.Is(err, moderation.ErrAlreadyClaimed):
				d.logger.Debugf("[Listing %d] Already being published elsewhere", l.ID)
				continue
			case errors.Is(err, moderation.ErrNotDue):
				d.logger.Debugf("[Listing %d] Rescheduled since it was found due", l.ID)
				continue
			}
			d.logger.Errorf("[Listing %d] Scheduled publication failed: %v", l.ID, err)
			continue
		}
		published++
	}
	return published
}

// publishOne isolates a panic in one listing from the rest of the tick.
func (d *Dispatcher) publishOne(ctx context.Context, id int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("[Listing %d] Recovered from panic during publication: %v", id, r)
			err = errors.New("publication panicked")
		}
	}()
	return d.publisher.PublishDue(ctx, id)
}
