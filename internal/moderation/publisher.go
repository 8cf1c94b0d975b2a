package moderation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"shop-post-bot/internal/events"
	"shop-post-bot/internal/storage"
)

// maxGroupPhotos is the Telegram limit for one media group.
const maxGroupPhotos = 10

// Publisher delivers approved listings to the channel. A listing is claimed
// by moving it from approved to publishing before anything is sent, so two
// concurrent Publish calls for the same listing deliver it once.
type Publisher struct {
	core
}

func NewPublisher(settings Settings, deps Deps) *Publisher {
	return &Publisher{core: newCore(settings, deps)}
}

// Publish renders and delivers one listing and marks it published. It returns
// ErrAlreadyClaimed when another caller is publishing or has published it.
func (p *Publisher) Publish(ctx context.Context, listingID int64) error {
	l, err := p.getListing(ctx, listingID)
	if err != nil {
		return err
	}
	return p.publish(ctx, l)
}

// PublishDue is Publish for the scheduler: a listing whose schedule was
// cleared or moved into the future since it was found due is skipped with
// ErrNotDue.
func (p *Publisher) PublishDue(ctx context.Context, listingID int64) error {
	l, err := p.getListing(ctx, listingID)
	if err != nil {
		return err
	}
	if l.Status == storage.StatusApproved && (l.ScheduledAt == nil || l.ScheduledAt.After(p.clock.Now())) {
		return fmt.Errorf("%w: listing %d", ErrNotDue, l.ID)
	}
	return p.publish(ctx, l)
}

func (p *Publisher) publish(ctx context.Context, l *storage.Listing) error {
	switch l.Status {
	case storage.StatusApproved:
	case storage.StatusPublishing, storage.StatusPublished:
		return ErrAlreadyClaimed
	default:
		return fmt.Errorf("%w: listing %d is %s", ErrInvalidState, l.ID, l.Status)
	}

	// The claim only succeeds while the schedule read above is still current.
	if err := p.store.ClaimListing(ctx, l.ID, storage.StatusApproved, storage.StatusPublishing, l.ScheduledAt); err != nil {
		switch {
		case errors.Is(err, storage.ErrStaleStatus):
			return ErrAlreadyClaimed
		case errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("%w: id %d", ErrNotFound, l.ID)
		}
		return fmt.Errorf("failed to claim listing %d: %w", l.ID, err)
	}
	started := p.clock.Now()

	body, err := p.render(ctx, l)
	if err != nil {
		p.metrics.RenderFailed()
		p.logger.Errorf("[Listing %d] Render failed: %v", l.ID, err)
		p.fail(ctx, l, err)
		return fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	if err := p.store.SetRenderedBody(ctx, l.ID, body); err != nil {
		p.logger.Warnf("[Listing %d] Could not store rendered body: %v", l.ID, err)
	}

	if err := p.deliver(ctx, l, body); err != nil {
		kind := "transient"
		if errors.Is(err, ErrUndeliverable) {
			kind = "permanent"
		}
		p.metrics.DeliveryFailed(kind)
		p.logger.Errorf("[Listing %d] Delivery failed (%s), it will be retried by the scheduler: %v", l.ID, kind, err)
		p.fail(ctx, l, err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	// The post is out; the status write must not be lost to a cancelled caller.
	wctx := context.WithoutCancel(ctx)
	if err := p.store.UpdateListingStatus(wctx, l.ID, storage.StatusPublishing, storage.StatusPublished, nil); err != nil {
		p.logger.Errorf("[Listing %d] Delivered but could not be marked published: %v", l.ID, err)
		return fmt.Errorf("failed to mark listing %d published: %w", l.ID, err)
	}

	p.metrics.ListingPublished(p.clock.Since(started))
	p.logger.Infof("[Listing %d] Published to channel %d", l.ID, p.settings.ChannelID)
	p.emit(wctx, events.Event{Type: events.TypePublished, ListingID: l.ID, Status: string(storage.StatusPublished)})
	p.notify(wctx, l.SubmitterID, fmt.Sprintf(p.msg("notify_published"), html.EscapeString(l.ProductName)))
	return nil
}

// deliver sends the post. Only the primary send decides success; attaching
// buttons to a media group is best-effort.
func (p *Publisher) deliver(ctx context.Context, l *storage.Listing, body string) error {
	kb := listingKeyboard(p.texts, p.settings.Language, l)
	channel := p.settings.ChannelID

	sendCtx, cancel := context.WithTimeout(ctx, p.settings.DeliveryTimeout)
	defer cancel()

	switch len(l.Photos) {
	case 0:
		_, err := p.messenger.SendText(sendCtx, channel, body, kb)
		return err
	case 1:
		_, err := p.messenger.SendPhoto(sendCtx, channel, l.Photos[0], body, kb)
		return err
	}

	photos := l.Photos
	if len(photos) > maxGroupPhotos {
		p.logger.Infof("[Listing %d] Dropping %d photos over the media group limit", l.ID, len(photos)-maxGroupPhotos)
		photos = photos[:maxGroupPhotos]
	}
	ids, err := p.messenger.SendPhotoGroup(sendCtx, channel, photos, body)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		p.logger.Warnf("[Listing %d] Media group sent but no message ids returned, buttons not attached", l.ID)
		return nil
	}

	editCtx, cancelEdit := context.WithTimeout(context.WithoutCancel(ctx), p.settings.DeliveryTimeout)
	defer cancelEdit()
	if err := p.messenger.EditButtons(editCtx, channel, ids[0], kb); err != nil {
		p.logger.Warnf("[Listing %d] Could not attach buttons to media group: %v", l.ID, err)
	}
	return nil
}

// fail releases the claim and counts the failure. Once the attempt ceiling is
// reached the listing stays approved without a schedule and the administrator
// is alerted.
func (p *Publisher) fail(ctx context.Context, l *storage.Listing, cause error) {
	ctx = context.WithoutCancel(ctx)

	attempts, err := p.store.RecordDeliveryFailure(ctx, l.ID)
	if err != nil {
		p.logger.Errorf("[Listing %d] Could not record delivery failure: %v", l.ID, err)
	}
	parked := p.settings.MaxDeliveryAttempts > 0 && attempts >= p.settings.MaxDeliveryAttempts

	var retryAt *time.Time
	switch {
	case parked:
	case l.ScheduledAt != nil:
		retryAt = l.ScheduledAt
	default:
		t := p.clock.Now().Add(p.settings.RetryDelay)
		retryAt = &t
	}

	if err := p.store.UpdateListingStatus(ctx, l.ID, storage.StatusPublishing, storage.StatusApproved, retryAt); err != nil {
		p.logger.Errorf("[Listing %d] Could not release publishing claim: %v", l.ID, err)
	}
	p.emit(ctx, events.Event{
		Type:        events.TypeDeliveryFailed,
		ListingID:   l.ID,
		Status:      string(storage.StatusApproved),
		ScheduledAt: retryAt,
		Attempts:    attempts,
		Error:       cause.Error(),
	})

	if !parked {
		return
	}
	p.metrics.ListingParked()
	p.logger.Warnf("[Listing %d] Giving up after %d failed attempts, waiting for a new schedule", l.ID, attempts)
	p.emit(ctx, events.Event{Type: events.TypeParked, ListingID: l.ID, Status: string(storage.StatusApproved), Attempts: attempts})
	p.notify(ctx, p.settings.AdminID, fmt.Sprintf(p.msg("alert_listing_parked"), l.ID, html.EscapeString(l.ProductName), attempts))
}
