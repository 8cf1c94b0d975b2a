package moderation

import (
	"context"
	"time"

	"shop-post-bot/internal/storage"
)

type Store interface {
	CreateListing(ctx context.Context, l *storage.Listing) (int64, error)
	GetListing(ctx context.Context, id int64) (*storage.Listing, error)
	ListListingsByStatus(ctx context.Context, status storage.Status) ([]*storage.Listing, error)
	UpdateListingStatus(ctx context.Context, id int64, from, to storage.Status, scheduledAt *time.Time) error
	ClaimListing(ctx context.Context, id int64, from, to storage.Status, scheduledAt *time.Time) error
	SetRenderedBody(ctx context.Context, id int64, body string) error
	RecordDeliveryFailure(ctx context.Context, id int64) (int, error)
	ResetDeliveryAttempts(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (*storage.Category, error)
	GetDefaultTemplate(ctx context.Context, categoryID int64) (*storage.Template, error)
}

// Button is either a URL button or a callback button carrying Data.
type Button struct {
	Text string
	URL  string
	Data string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Messenger delivers messages to Telegram chats. Send methods return the ids
// of the messages they created.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photo, caption string, kb Keyboard) (int, error)
	SendPhotoGroup(ctx context.Context, chatID int64, photos []string, caption string) ([]int, error)
	EditButtons(ctx context.Context, chatID int64, messageID int, kb Keyboard) error
}

type Texts interface {
	GetMessage(lang, key string) string
}
