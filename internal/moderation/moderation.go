// Package moderation owns the listing lifecycle: submission, the
// administrator's approve and reject decisions, scheduling, and the
// publication of approved listings to the broadcast channel.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"shop-post-bot/internal/events"
	"shop-post-bot/internal/formatter"
	"shop-post-bot/internal/metrics"
	"shop-post-bot/internal/storage"
)

type Settings struct {
	AdminID   int64
	ChannelID int64
	Language  string

	// DeliveryTimeout bounds every call to the messenger.
	DeliveryTimeout time.Duration
	// MaxDeliveryAttempts failed deliveries take a listing off the schedule.
	// Zero retries forever.
	MaxDeliveryAttempts int
	// RetryDelay is how far ahead a failed immediate publication is
	// rescheduled; normally the scheduler poll interval.
	RetryDelay time.Duration
}

// Deps are the collaborators shared by Controller and Publisher. Events,
// Metrics, Clock and Logger are optional.
type Deps struct {
	Store     Store
	Messenger Messenger
	Texts     Texts
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
	Logger    *zap.SugaredLogger
}

type core struct {
	store     Store
	messenger Messenger
	texts     Texts
	events    events.Publisher
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
	settings  Settings
}

func newCore(settings Settings, deps Deps) core {
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if settings.DeliveryTimeout <= 0 {
		settings.DeliveryTimeout = 30 * time.Second
	}
	if settings.RetryDelay <= 0 {
		settings.RetryDelay = time.Minute
	}
	return core{
		store:     deps.Store,
		messenger: deps.Messenger,
		texts:     deps.Texts,
		events:    deps.Events,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		logger:    deps.Logger,
		settings:  settings,
	}
}

func (c *core) msg(key string) string {
	return c.texts.GetMessage(c.settings.Language, key)
}

func (c *core) getListing(ctx context.Context, id int64) (*storage.Listing, error) {
	l, err := c.store.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load listing %d: %w", id, err)
	}
	return l, nil
}

// render builds the post body with the category's default template, if any.
func (c *core) render(ctx context.Context, l *storage.Listing) (string, error) {
	category, err := c.store.GetCategory(ctx, l.CategoryID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to load category %d: %w", l.CategoryID, err)
	}
	tpl, err := c.store.GetDefaultTemplate(ctx, l.CategoryID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("failed to load template for category %d: %w", l.CategoryID, err)
		}
		tpl = nil
	}
	return renderSafely(l, category, tpl)
}

func renderSafely(l *storage.Listing, category *storage.Category, tpl *storage.Template) (body string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return formatter.Render(l, category, tpl)
}

func (c *core) emit(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = c.clock.Now()
	}
	if err := c.events.Publish(ctx, e); err != nil {
		c.logger.Warnf("[Listing %d] Failed to publish %s event: %v", e.ListingID, e.Type, err)
	}
}

// notify sends a best-effort message to a user; failures are only logged.
func (c *core) notify(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.DeliveryTimeout)
	defer cancel()
	if _, err := c.messenger.SendText(ctx, chatID, text, nil); err != nil {
		c.logger.Debugf("Could not notify chat %d: %v", chatID, err)
	}
}
