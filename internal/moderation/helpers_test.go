package moderation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"shop-post-bot/internal/events"
	"shop-post-bot/internal/storage"
)

const (
	testAdminID   int64 = 1
	testChannelID int64 = -100123
	testSubmitter int64 = 42
)

var testNow = time.Date(2030, 12, 1, 12, 0, 0, 0, time.UTC)

type stubTexts struct{}

var stubMessages = map[string]string{
	"notify_published":       "published: %s",
	"notify_rejected":        "rejected: %s",
	"alert_listing_parked":   "parked #%d %s after %d attempts",
	"moderation_card_header": "card from %s #%d",
}

func (stubTexts) GetMessage(_, key string) string {
	if m, ok := stubMessages[key]; ok {
		return m
	}
	return key
}

type sentMessage struct {
	Kind      string
	ChatID    int64
	Text      string
	Photos    []string
	Keyboard  Keyboard
	MessageID int
}

type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	sent   []sentMessage
	edits  []sentMessage

	// failChannel fails sends to the channel, failDirect sends to anyone else.
	failChannel error
	failDirect  error
	failEdit    error
}

func (f *fakeMessenger) record(ctx context.Context, m sentMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.ChatID == testChannelID && f.failChannel != nil {
		return 0, f.failChannel
	}
	if m.ChatID != testChannelID && f.failDirect != nil {
		return 0, f.failDirect
	}
	f.nextID++
	m.MessageID = f.nextID
	f.sent = append(f.sent, m)
	return m.MessageID, nil
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error) {
	return f.record(ctx, sentMessage{Kind: "text", ChatID: chatID, Text: text, Keyboard: kb})
}

func (f *fakeMessenger) SendPhoto(ctx context.Context, chatID int64, photo, caption string, kb Keyboard) (int, error) {
	return f.record(ctx, sentMessage{Kind: "photo", ChatID: chatID, Text: caption, Photos: []string{photo}, Keyboard: kb})
}

func (f *fakeMessenger) SendPhotoGroup(ctx context.Context, chatID int64, photos []string, caption string) ([]int, error) {
	first, err := f.record(ctx, sentMessage{Kind: "group", ChatID: chatID, Text: caption, Photos: photos})
	if err != nil {
		return nil, err
	}
	ids := []int{first}
	f.mu.Lock()
	for i := 1; i < len(photos); i++ {
		f.nextID++
		ids = append(ids, f.nextID)
	}
	f.mu.Unlock()
	return ids, nil
}

func (f *fakeMessenger) EditButtons(_ context.Context, chatID int64, messageID int, kb Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit != nil {
		return f.failEdit
	}
	f.edits = append(f.edits, sentMessage{Kind: "edit", ChatID: chatID, MessageID: messageID, Keyboard: kb})
	return nil
}

func (f *fakeMessenger) sentTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessenger) setFailChannel(err error) {
	f.mu.Lock()
	f.failChannel = err
	f.mu.Unlock()
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	store      *storage.Storage
	messenger  *fakeMessenger
	events     *recordingEvents
	clock      *clockwork.FakeClock
	publisher  *Publisher
	controller *Controller
	category   storage.Category
}

func newTestEnv(t *testing.T, adjust ...func(*Settings)) *testEnv {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	categories, err := store.ListCategories(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, categories)

	settings := Settings{
		AdminID:             testAdminID,
		ChannelID:           testChannelID,
		Language:            "ru",
		DeliveryTimeout:     time.Second,
		MaxDeliveryAttempts: 3,
		RetryDelay:          time.Minute,
	}
	for _, fn := range adjust {
		fn(&settings)
	}

	env := &testEnv{
		store:     store,
		messenger: &fakeMessenger{},
		events:    &recordingEvents{},
		clock:     clockwork.NewFakeClockAt(testNow),
		category:  categories[0],
	}
	deps := Deps{
		Store:     store,
		Messenger: env.messenger,
		Texts:     stubTexts{},
		Events:    env.events,
		Clock:     env.clock,
	}
	env.publisher = NewPublisher(settings, deps)
	env.controller = NewController(settings, deps, env.publisher)
	return env
}

func (e *testEnv) submission() Submission {
	return Submission{
		SubmitterID:   testSubmitter,
		SubmitterName: "Иван",
		CategoryID:    e.category.ID,
		ProductName:   "Samsung Galaxy S21",
		Specs:         map[string]string{"Память": "128 ГБ", "Цвет": "Чёрный"},
		Photos:        []string{"photo-1", "photo-2"},
		ExternalLink:  "https://www.avito.ru/item/1",
		Price:         "500",
	}
}

// approvedListing submits and approves a listing, returning its id.
func (e *testEnv) approvedListing(t *testing.T, sub Submission) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := e.controller.SubmitListing(ctx, sub)
	require.NoError(t, err)
	require.NoError(t, e.controller.Approve(ctx, testAdminID, id))
	return id
}

func (e *testEnv) listing(t *testing.T, id int64) *storage.Listing {
	t.Helper()
	l, err := e.store.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l
}

var errNetwork = errors.New("dial tcp: i/o timeout")

func undeliverable(msg string) error {
	return fmt.Errorf("%w: %s", ErrUndeliverable, msg)
}
