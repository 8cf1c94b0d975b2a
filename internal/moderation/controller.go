package moderation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"shop-post-bot/internal/events"
	"shop-post-bot/internal/storage"
)

// Submission is a completed listing as collected by the web form or the bot.
type Submission struct {
	SubmitterID   int64
	SubmitterName string
	CategoryID    int64
	ProductName   string
	Specs         map[string]string
	Photos        []string
	ExternalLink  string

	Price       string
	ExternalID  string
	ShopAddress string
	ContactLink string
}

type Preview struct {
	Body    string
	Buttons Keyboard
}

// Controller enforces the listing state machine:
//
//	pending -> approved -> published
//	pending -> rejected
//
// Every transition is requested by the administrator except approved ->
// published, which only the Publisher performs.
type Controller struct {
	core
	publisher *Publisher
}

func NewController(settings Settings, deps Deps, publisher *Publisher) *Controller {
	return &Controller{core: newCore(settings, deps), publisher: publisher}
}

func (c *Controller) authorize(actorID int64) error {
	if actorID != c.settings.AdminID {
		return ErrPermissionDenied
	}
	return nil
}

func (c *Controller) IsAdmin(userID int64) bool {
	return userID == c.settings.AdminID
}

func (c *Controller) buildListing(ctx context.Context, sub Submission) (*storage.Listing, error) {
	name := strings.TrimSpace(sub.ProductName)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidSubmission)
	}
	link, err := url.Parse(strings.TrimSpace(sub.ExternalLink))
	if err != nil || (link.Scheme != "http" && link.Scheme != "https") || link.Host == "" {
		return nil, fmt.Errorf("%w: listing link must be an http(s) URL", ErrInvalidSubmission)
	}
	if len(sub.Photos) > storage.MaxPhotos {
		return nil, fmt.Errorf("%w: at most %d photos allowed, got %d", ErrInvalidSubmission, storage.MaxPhotos, len(sub.Photos))
	}
	if _, err := c.store.GetCategory(ctx, sub.CategoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidSubmission, sub.CategoryID)
		}
		return nil, fmt.Errorf("failed to load category %d: %w", sub.CategoryID, err)
	}

	specs := make(map[string]string, len(sub.Specs))
	for k, v := range sub.Specs {
		k = strings.TrimSpace(k)
		// Underscore keys used to carry listing attributes; they are fields now.
		if k == "" || strings.HasPrefix(k, "_") {
			continue
		}
		specs[k] = strings.TrimSpace(v)
	}
	var photos []string
	for _, p := range sub.Photos {
		if p = strings.TrimSpace(p); p != "" {
			photos = append(photos, p)
		}
	}

	return &storage.Listing{
		SubmitterID:  sub.SubmitterID,
		CategoryID:   sub.CategoryID,
		ProductName:  name,
		Specs:        specs,
		Photos:       photos,
		ExternalLink: link.String(),
		Price:        strings.TrimSpace(sub.Price),
		ExternalID:   strings.TrimSpace(sub.ExternalID),
		ShopAddress:  strings.TrimSpace(sub.ShopAddress),
		ContactLink:  strings.TrimSpace(sub.ContactLink),
		Status:       storage.StatusPending,
	}, nil
}

// Preview renders a submission the way it would appear in the channel
// without storing it.
func (c *Controller) Preview(ctx context.Context, sub Submission) (*Preview, error) {
	l, err := c.buildListing(ctx, sub)
	if err != nil {
		return nil, err
	}
	body, err := c.render(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return &Preview{Body: body, Buttons: listingKeyboard(c.texts, c.settings.Language, l)}, nil
}

// SubmitListing stores a new pending listing and sends the administrator a
// moderation card. The card is best-effort.
func (c *Controller) SubmitListing(ctx context.Context, sub Submission) (int64, error) {
	l, err := c.buildListing(ctx, sub)
	if err != nil {
		return 0, err
	}
	body, err := c.render(ctx, l)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	id, err := c.store.CreateListing(ctx, l)
	if err != nil {
		return 0, fmt.Errorf("failed to store listing: %w", err)
	}
	c.metrics.ListingSubmitted()
	c.logger.Infof("[Listing %d] Submitted by %d: %s", id, sub.SubmitterID, l.ProductName)
	c.emit(ctx, events.Event{Type: events.TypeSubmitted, ListingID: id, Status: string(storage.StatusPending)})

	c.sendModerationCard(ctx, l, body, sub.SubmitterName)
	return id, nil
}

func (c *Controller) sendModerationCard(ctx context.Context, l *storage.Listing, body, author string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.DeliveryTimeout)
	defer cancel()

	if author == "" {
		author = c.msg("unknown_author")
	}
	switch n := len(l.Photos); {
	case n == 1:
		if _, err := c.messenger.SendPhoto(ctx, c.settings.AdminID, l.Photos[0], "", nil); err != nil {
			c.logger.Warnf("[Listing %d] Could not send photo to administrator: %v", l.ID, err)
		}
	case n > 1:
		photos := l.Photos
		if n > maxGroupPhotos {
			photos = photos[:maxGroupPhotos]
		}
		if _, err := c.messenger.SendPhotoGroup(ctx, c.settings.AdminID, photos, ""); err != nil {
			c.logger.Warnf("[Listing %d] Could not send photos to administrator: %v", l.ID, err)
		}
	}

	header := fmt.Sprintf(c.msg("moderation_card_header"), html.EscapeString(author), l.ID)
	kb := moderationKeyboard(c.texts, c.settings.Language, l.ID)
	if _, err := c.messenger.SendText(ctx, c.settings.AdminID, header+"\n\n"+body, kb); err != nil {
		c.logger.Errorf("[Listing %d] Could not send moderation card: %v", l.ID, err)
	}
}

func (c *Controller) transition(ctx context.Context, actorID, id int64, from, to storage.Status) (*storage.Listing, error) {
	if err := c.authorize(actorID); err != nil {
		return nil, err
	}
	l, err := c.getListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != from {
		return nil, fmt.Errorf("%w: listing %d is %s", ErrInvalidState, id, l.Status)
	}
	if err := c.store.UpdateListingStatus(ctx, id, from, to, nil); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: listing %d changed concurrently", ErrInvalidState, id)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to update listing %d: %w", id, err)
	}
	l.Status = to
	l.ScheduledAt = nil
	return l, nil
}

// Approve moves a pending listing to approved. It does not publish; the
// caller follows up with SetSchedule.
func (c *Controller) Approve(ctx context.Context, actorID, id int64) error {
	if _, err := c.transition(ctx, actorID, id, storage.StatusPending, storage.StatusApproved); err != nil {
		return err
	}
	c.logger.Infof("[Listing %d] Approved", id)
	c.emit(ctx, events.Event{Type: events.TypeApproved, ListingID: id, Status: string(storage.StatusApproved)})
	return nil
}

// Reject moves a pending listing to rejected and tells the submitter.
func (c *Controller) Reject(ctx context.Context, actorID, id int64) error {
	l, err := c.transition(ctx, actorID, id, storage.StatusPending, storage.StatusRejected)
	if err != nil {
		return err
	}
	c.logger.Infof("[Listing %d] Rejected", id)
	c.emit(ctx, events.Event{Type: events.TypeRejected, ListingID: id, Status: string(storage.StatusRejected)})
	c.notify(ctx, l.SubmitterID, fmt.Sprintf(c.msg("notify_rejected"), html.EscapeString(l.ProductName)))
	return nil
}

// SetSchedule publishes an approved listing immediately or stores a future
// publish time for the scheduler. A time that is not in the future is
// rejected with ErrInvalidSchedule and leaves the listing untouched.
func (c *Controller) SetSchedule(ctx context.Context, actorID, id int64, when Schedule) error {
	if err := c.authorize(actorID); err != nil {
		return err
	}
	l, err := c.getListing(ctx, id)
	if err != nil {
		return err
	}
	if l.Status != storage.StatusApproved {
		return fmt.Errorf("%w: listing %d is %s", ErrInvalidState, id, l.Status)
	}

	if when.Now {
		if err := c.store.ResetDeliveryAttempts(ctx, id); err != nil {
			c.logger.Warnf("[Listing %d] Could not reset delivery attempts: %v", id, err)
		}
		return c.publisher.Publish(ctx, id)
	}

	now := c.clock.Now()
	if !when.At.After(now) {
		return fmt.Errorf("%w: %s is not in the future", ErrInvalidSchedule, when.At.Format(ScheduleLayout))
	}
	at := when.At
	if err := c.store.UpdateListingStatus(ctx, id, storage.StatusApproved, storage.StatusApproved, &at); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			return fmt.Errorf("%w: listing %d changed concurrently", ErrInvalidState, id)
		}
		return fmt.Errorf("failed to schedule listing %d: %w", id, err)
	}
	if err := c.store.ResetDeliveryAttempts(ctx, id); err != nil {
		c.logger.Warnf("[Listing %d] Could not reset delivery attempts: %v", id, err)
	}
	c.logger.Infof("[Listing %d] Scheduled for %s", id, at.Format(ScheduleLayout))
	c.emit(ctx, events.Event{Type: events.TypeScheduled, ListingID: id, Status: string(storage.StatusApproved), ScheduledAt: &at})
	return nil
}

// Pending lists listings awaiting a decision.
func (c *Controller) Pending(ctx context.Context, actorID int64) ([]*storage.Listing, error) {
	if err := c.authorize(actorID); err != nil {
		return nil, err
	}
	return c.store.ListListingsByStatus(ctx, storage.StatusPending)
}
