// Package events publishes listing lifecycle changes to NATS so other
// services can follow moderation without polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "listing."

const (
	TypeSubmitted      = "submitted"
	TypeApproved       = "approved"
	TypeRejected       = "rejected"
	TypeScheduled      = "scheduled"
	TypePublished      = "published"
	TypeDeliveryFailed = "delivery_failed"
	TypeParked         = "parked"
)

type Event struct {
	Type        string     `json:"type"`
	ListingID   int64      `json:"listing_id"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	Error       string     `json:"error,omitempty"`
	At          time.Time  `json:"at"`
}

// Subject is the NATS subject the event is published on, e.g. "listing.published".
func (e Event) Subject() string {
	return subjectPrefix + e.Type
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type NATSPublisher struct {
	nc     *nats.Conn
	logger *zap.SugaredLogger
}

func NewNATSPublisher(url string, timeout time.Duration, logger *zap.SugaredLogger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("shop-post-bot"),
		nats.Timeout(timeout),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warnf("NATS disconnected: %v", err)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Infof("Connected to NATS at %s", nc.ConnectedUrl())
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", e.Subject(), err)
	}
	if err := p.nc.Publish(e.Subject(), data); err != nil {
		return fmt.Errorf("failed to publish NATS message for %s: %w", e.Subject(), err)
	}
	p.logger.Debugf("[Listing %d] Published %s", e.ListingID, e.Subject())
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil && !p.nc.IsClosed() {
		if err := p.nc.Drain(); err != nil {
			p.logger.Errorf("Error draining NATS connection: %v", err)
		}
		p.nc.Close()
	}
}

// Noop discards events; used when NATS_URL is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
