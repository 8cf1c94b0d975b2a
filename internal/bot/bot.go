// Package bot handles inbound Telegram updates: the administrator's
// moderation buttons, schedule replies and the few text commands.
package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shop-post-bot/internal/moderation"
	"shop-post-bot/internal/storage"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Moderator interface {
	IsAdmin(userID int64) bool
	Approve(ctx context.Context, actorID, id int64) error
	Reject(ctx context.Context, actorID, id int64) error
	SetSchedule(ctx context.Context, actorID, id int64, when moderation.Schedule) error
	Pending(ctx context.Context, actorID int64) ([]*storage.Listing, error)
}

type StatsSource interface {
	ListingStats(ctx context.Context) (map[storage.Status]int, error)
}

type Texts interface {
	GetMessage(lang, key string) string
}

type ConversationState struct {
	Step      string
	ListingID int64
}

type Config struct {
	Language  string
	Location  *time.Location
	WebAppURL string
}

type TelegramBot struct {
	api       API
	moderator Moderator
	stats     StatsSource
	localizer Texts
	cfg       Config
	logger    *zap.SugaredLogger

	userStates map[int64]*ConversationState
	stateMutex sync.Mutex
}

func NewBot(api API, moderator Moderator, stats StatsSource, localizer Texts, cfg Config, logger *zap.SugaredLogger) *TelegramBot {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &TelegramBot{
		api:        api,
		moderator:  moderator,
		stats:      stats,
		localizer:  localizer,
		cfg:        cfg,
		logger:     logger,
		userStates: make(map[int64]*ConversationState),
	}
}

// Start receives updates until ctx is cancelled.
func (b *TelegramBot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Listening for Telegram updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Stopped listening for Telegram updates")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *TelegramBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Recovered from panic while handling update %d: %v", update.UpdateID, r)
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if update.Message.IsCommand() {
		b.handleCommand(ctx, update.Message)
		return
	}

	userID := update.Message.From.ID
	state, ok := b.getUserState(userID)
	if !ok {
		return
	}
	if !b.moderator.IsAdmin(userID) {
		b.clearUserState(userID)
		return
	}
	b.handleStatefulMessage(ctx, update.Message, state)
}
