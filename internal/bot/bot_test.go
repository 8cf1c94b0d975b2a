package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shop-post-bot/internal/moderation"
	"shop-post-bot/internal/storage"
)

const (
	adminID    int64 = 1
	strangerID int64 = 99
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	m, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	return m
}

func (f *fakeAPI) callbackAnswers() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

func (f *fakeAPI) markupEdits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		if _, ok := c.(tgbotapi.EditMessageReplyMarkupConfig); ok {
			n++
		}
	}
	return n
}

type mockModerator struct {
	mock.Mock

	mu             sync.Mutex
	scheduleCtxErr error
}

func (m *mockModerator) IsAdmin(userID int64) bool {
	return userID == adminID
}

func (m *mockModerator) Approve(ctx context.Context, actorID, id int64) error {
	return m.Called(actorID, id).Error(0)
}

func (m *mockModerator) Reject(ctx context.Context, actorID, id int64) error {
	return m.Called(actorID, id).Error(0)
}

func (m *mockModerator) SetSchedule(ctx context.Context, actorID, id int64, when moderation.Schedule) error {
	m.mu.Lock()
	m.scheduleCtxErr = ctx.Err()
	m.mu.Unlock()
	return m.Called(actorID, id, when).Error(0)
}

func (m *mockModerator) Pending(ctx context.Context, actorID int64) ([]*storage.Listing, error) {
	args := m.Called(actorID)
	listings, _ := args.Get(0).([]*storage.Listing)
	return listings, args.Error(1)
}

type fakeStats struct {
	stats map[storage.Status]int
	err   error
}

func (f fakeStats) ListingStats(context.Context) (map[storage.Status]int, error) {
	return f.stats, f.err
}

// keyTexts echoes the key so tests can assert which message was chosen.
type keyTexts struct{}

func (keyTexts) GetMessage(_, key string) string {
	switch key {
	case "ask_schedule", "listing_rejected":
		return key + " %d"
	case "schedule_set":
		return key + " %s"
	case "pending_item":
		return " #%d %s"
	case "stats_format":
		return key + " %d/%d/%d/%d/%d"
	}
	return key
}

var moscow = time.FixedZone("MSK", 3*60*60)

func newTestBot(t *testing.T, stats fakeStats) (*TelegramBot, *fakeAPI, *mockModerator) {
	t.Helper()
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	mod := &mockModerator{}
	t.Cleanup(func() { mod.AssertExpectations(t) })
	cfg := Config{Language: "ru", Location: moscow, WebAppURL: "https://shop.example/form"}
	return NewBot(api, mod, stats, keyTexts{}, cfg, zap.NewNop().Sugar()), api, mod
}

func commandUpdate(from int64, command string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      "/" + command,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}},
	}}
}

func textUpdate(from int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
	}}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: from},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 55,
			Chat:      &tgbotapi.Chat{ID: from},
		},
	}}
}

func TestStartCommandOffersForm(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{})
	b.handleUpdate(context.Background(), commandUpdate(strangerID, commandStart))

	msg := api.lastMessage(t)
	assert.Equal(t, "welcome_message", msg.Text)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.NotNil(t, markup.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://shop.example/form", *markup.InlineKeyboard[0][0].URL)
}

func TestHelpCommandAddsAdminSection(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{})
	b.handleUpdate(context.Background(), commandUpdate(strangerID, commandHelp))
	b.handleUpdate(context.Background(), commandUpdate(adminID, commandHelp))

	assert.Equal(t, []string{"help_message", "help_messagehelp_admin"}, api.texts())
}

func TestProtectedCommandsRequireAdmin(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{})
	b.handleUpdate(context.Background(), commandUpdate(strangerID, commandPending))
	b.handleUpdate(context.Background(), commandUpdate(strangerID, commandStats))

	assert.Equal(t, []string{"permission_denied", "permission_denied"}, api.texts())
}

func TestPendingCommandListsListings(t *testing.T) {
	b, api, mod := newTestBot(t, fakeStats{})
	mod.On("Pending", adminID).Return([]*storage.Listing{
		{ID: 3, ProductName: "iPhone <13>"},
		{ID: 4, ProductName: "Galaxy S21"},
	}, nil)

	b.handleUpdate(context.Background(), commandUpdate(adminID, commandPending))

	msg := api.lastMessage(t)
	assert.Equal(t, "pending_title #3 iPhone &lt;13&gt; #4 Galaxy S21", msg.Text)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, moderation.CallbackData(moderation.ActionApprove, 3), *markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, moderation.CallbackData(moderation.ActionReject, 4), *markup.InlineKeyboard[1][1].CallbackData)
}

func TestPendingCommandEmpty(t *testing.T) {
	b, api, mod := newTestBot(t, fakeStats{})
	mod.On("Pending", adminID).Return(nil, nil)

	b.handleUpdate(context.Background(), commandUpdate(adminID, commandPending))
	assert.Equal(t, []string{"pending_empty"}, api.texts())
}

func TestStatsCommand(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{stats: map[storage.Status]int{
		storage.StatusPending:   2,
		storage.StatusApproved:  1,
		storage.StatusPublished: 7,
		storage.StatusRejected:  3,
	}})
	b.handleUpdate(context.Background(), commandUpdate(adminID, commandStats))
	assert.Equal(t, []string{"stats_format 2/1/0/7/3"}, api.texts())

	failing, api, _ := newTestBot(t, fakeStats{err: errors.New("db down")})
	failing.handleUpdate(context.Background(), commandUpdate(adminID, commandStats))
	assert.Equal(t, []string{"internal_error"}, api.texts())
}

func TestApproveCallbackAsksForSchedule(t *testing.T) {
	b, api, mod := newTestBot(t, fakeStats{})
	mod.On("Approve", adminID, int64(7)).Return(nil)

	b.handleUpdate(context.Background(), callbackUpdate(adminID, moderation.CallbackData(moderation.ActionApprove, 7)))

	assert.Equal(t, []string{"ask_schedule 7"}, api.texts())
	assert.Equal(t, 1, api.markupEdits())
	answers := api.callbackAnswers()
	require.Len(t, answers, 1)
	assert.False(t, answers[0].ShowAlert)

	state, ok := b.getUserState(adminID)
	require.True(t, ok)
	assert.Equal(t, &ConversationState{Step: StateAwaitingSchedule, ListingID: 7}, state)
}

func TestRejectCallback(t *testing.T) {
	b, api, mod := newTestBot(t, fakeStats{})
	mod.On("Reject", adminID, int64(8)).Return(nil)

	b.handleUpdate(context.Background(), callbackUpdate(adminID, moderation.CallbackData(moderation.ActionReject, 8)))

	assert.Equal(t, []string{"listing_rejected 8"}, api.texts())
	assert.Equal(t, 1, api.markupEdits())
	_, ok := b.getUserState(adminID)
	assert.False(t, ok)
}

func TestCallbackErrors(t *testing.T) {
	tests := []struct {
		name  string
		from  int64
		data  string
		err   error
		alert string
	}{
		{name: "stranger", from: strangerID, data: moderation.CallbackData(moderation.ActionApprove, 1), alert: "permission_denied"},
		{name: "garbage", from: adminID, data: "nonsense", alert: "invalid_callback"},
		{name: "missing listing", from: adminID, data: moderation.CallbackData(moderation.ActionApprove, 1), err: moderation.ErrNotFound, alert: "listing_not_found"},
		{name: "already handled", from: adminID, data: moderation.CallbackData(moderation.ActionReject, 1), err: fmt.Errorf("wrap: %w", moderation.ErrInvalidState), alert: "listing_invalid_state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, mod := newTestBot(t, fakeStats{})
			if tt.err != nil {
				action, id, err := moderation.ParseCallbackData(tt.data)
				require.NoError(t, err)
				method := "Approve"
				if action == moderation.ActionReject {
					method = "Reject"
				}
				mod.On(method, tt.from, id).Return(tt.err)
			}

			b.handleUpdate(context.Background(), callbackUpdate(tt.from, tt.data))

			answers := api.callbackAnswers()
			require.Len(t, answers, 1)
			assert.True(t, answers[0].ShowAlert)
			assert.Equal(t, tt.alert, answers[0].Text)
			assert.Empty(t, api.texts())
			assert.Zero(t, api.markupEdits())
			_, ok := b.getUserState(tt.from)
			assert.False(t, ok)
		})
	}
}

func TestScheduleReply(t *testing.T) {
	at := time.Date(2030, 12, 25, 10, 0, 0, 0, moscow)
	tests := []struct {
		name      string
		input     string
		schedule  *moderation.Schedule
		err       error
		reply     string
		keepState bool
	}{
		{name: "bad format", input: "tomorrow", reply: "schedule_invalid_format", keepState: true},
		{name: "now", input: "now", schedule: &moderation.Schedule{Now: true}, reply: "published_now"},
		{name: "future time", input: "25.12.2030 10:00", schedule: &moderation.Schedule{At: at}, reply: "schedule_set 25.12.2030 10:00"},
		{name: "past time", input: "25.12.2030 10:00", schedule: &moderation.Schedule{At: at}, err: moderation.ErrInvalidSchedule, reply: "schedule_in_past", keepState: true},
		{name: "delivery failure", input: "now", schedule: &moderation.Schedule{Now: true}, err: moderation.ErrDeliveryFailed, reply: "publish_failed_retry"},
		{name: "claimed", input: "now", schedule: &moderation.Schedule{Now: true}, err: moderation.ErrAlreadyClaimed, reply: "publish_in_progress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, mod := newTestBot(t, fakeStats{})
			b.setUserState(adminID, &ConversationState{Step: StateAwaitingSchedule, ListingID: 5})
			if tt.schedule != nil {
				mod.On("SetSchedule", adminID, int64(5), mock.MatchedBy(func(s moderation.Schedule) bool {
					return s.Now == tt.schedule.Now && s.At.Equal(tt.schedule.At)
				})).Return(tt.err)
			}

			b.handleUpdate(context.Background(), textUpdate(adminID, tt.input))

			assert.Equal(t, []string{tt.reply}, api.texts())
			_, ok := b.getUserState(adminID)
			assert.Equal(t, tt.keepState, ok)
		})
	}
}

func TestScheduleReplyOutlivesShutdown(t *testing.T) {
	b, api, mod := newTestBot(t, fakeStats{})
	b.setUserState(adminID, &ConversationState{Step: StateAwaitingSchedule, ListingID: 5})
	mod.On("SetSchedule", adminID, int64(5), moderation.PublishNow()).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.handleUpdate(ctx, textUpdate(adminID, "now"))

	mod.mu.Lock()
	defer mod.mu.Unlock()
	assert.NoError(t, mod.scheduleCtxErr, "publishing now runs on a context shutdown does not cancel")
	assert.Equal(t, []string{"published_now"}, api.texts())
}

func TestTextWithoutStateIsIgnored(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{})
	b.handleUpdate(context.Background(), textUpdate(adminID, "hello"))
	assert.Empty(t, api.texts())
}

func TestStrangerStateIsDropped(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{})
	b.setUserState(strangerID, &ConversationState{Step: StateAwaitingSchedule, ListingID: 5})

	b.handleUpdate(context.Background(), textUpdate(strangerID, "now"))

	assert.Empty(t, api.texts())
	_, ok := b.getUserState(strangerID)
	assert.False(t, ok)
}

func TestCancelCommand(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{})
	b.setUserState(adminID, &ConversationState{Step: StateAwaitingSchedule, ListingID: 5})

	b.handleUpdate(context.Background(), commandUpdate(adminID, commandCancel))
	b.handleUpdate(context.Background(), commandUpdate(adminID, commandCancel))

	assert.Equal(t, []string{"action_cancelled", "nothing_to_cancel"}, api.texts())
}

func TestStartStopsOnCancel(t *testing.T) {
	b, api, _ := newTestBot(t, fakeStats{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	api.updates <- commandUpdate(strangerID, commandStart)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
	assert.Len(t, api.sent, 1)
}
