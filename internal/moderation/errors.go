package moderation

import "errors"

var (
	ErrNotFound          = errors.New("listing not found")
	ErrPermissionDenied  = errors.New("only the administrator may moderate listings")
	ErrInvalidState      = errors.New("transition not allowed from the current status")
	ErrInvalidSchedule   = errors.New("invalid publish time")
	ErrRenderFailed      = errors.New("listing could not be rendered")
	ErrDeliveryFailed    = errors.New("listing could not be delivered to the channel")
	ErrAlreadyClaimed    = errors.New("listing is already being published")
	ErrInvalidSubmission = errors.New("invalid listing submission")
	ErrNotDue            = errors.New("listing is not due for publication")

	// ErrUndeliverable marks messenger errors that will not succeed on retry,
	// such as an unknown chat or a rejected payload.
	ErrUndeliverable = errors.New("message rejected by the messaging service")
)
