// Package telegram sends listings and moderation cards through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shop-post-bot/internal/moderation"
)

// API is the subset of *tgbotapi.BotAPI used for outbound messages.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// NewBotAPI connects to the Bot API with an HTTP client bounded by timeout.
func NewBotAPI(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = false
	return api, nil
}

// Messenger implements moderation.Messenger. All sends share one token
// bucket so bursts of publications stay under Telegram's flood limits.
type Messenger struct {
	api     API
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewMessenger paces sends at perSecond messages per second. A non-positive
// rate disables pacing.
func NewMessenger(api API, perSecond float64, logger *zap.SugaredLogger) *Messenger {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Messenger{api: api, limiter: rate.NewLimiter(limit, 1), logger: logger}
}

var _ moderation.Messenger = (*Messenger)(nil)

func (m *Messenger) SendText(ctx context.Context, chatID int64, text string, kb moderation.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup := inlineKeyboard(kb); markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := m.send(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("send text to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

func (m *Messenger) SendPhoto(ctx context.Context, chatID int64, photo, caption string, kb moderation.Keyboard) (int, error) {
	msg := tgbotapi.NewPhoto(chatID, photoFile(photo))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML
	if markup := inlineKeyboard(kb); markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := m.send(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("send photo to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// SendPhotoGroup sends an album. Only the first photo carries the caption,
// which is how Telegram shows an album caption.
func (m *Messenger) SendPhotoGroup(ctx context.Context, chatID int64, photos []string, caption string) ([]int, error) {
	if len(photos) == 0 {
		return nil, errors.New("photo group needs at least one photo")
	}
	media := make([]interface{}, 0, len(photos))
	for i, p := range photos {
		item := tgbotapi.NewInputMediaPhoto(photoFile(p))
		if i == 0 && caption != "" {
			item.Caption = caption
			item.ParseMode = tgbotapi.ModeHTML
		}
		media = append(media, item)
	}

	var sent []tgbotapi.Message
	err := m.do(ctx, func() error {
		var err error
		sent, err = m.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("send photo group to %d: %w", chatID, err)
	}
	ids := make([]int, 0, len(sent))
	for _, msg := range sent {
		ids = append(ids, msg.MessageID)
	}
	return ids, nil
}

func (m *Messenger) EditButtons(ctx context.Context, chatID int64, messageID int, kb moderation.Keyboard) error {
	markup := inlineKeyboard(kb)
	if markup == nil {
		markup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, *markup)
	err := m.do(ctx, func() error {
		_, err := m.api.Request(edit)
		return err
	})
	if err != nil {
		return fmt.Errorf("edit buttons of message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (m *Messenger) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var sent tgbotapi.Message
	err := m.do(ctx, func() error {
		var err error
		sent, err = m.api.Send(c)
		return err
	})
	return sent, err
}

// do waits for a send slot and runs call, returning early when ctx ends.
// The Bot API client has no context support, so an abandoned call keeps
// running until its HTTP timeout.
func (m *Messenger) do(ctx context.Context, call func() error) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- call() }()
	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		m.logger.Warnf("Telegram call abandoned: %v", ctx.Err())
		return ctx.Err()
	}
}

// classify marks errors that a retry cannot fix. Rate limiting and server
// side failures stay transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.RetryAfter > 0 || apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
		return err
	}
	return fmt.Errorf("%w: %v", moderation.ErrUndeliverable, err)
}

// photoFile accepts either a public URL or a Telegram file id.
func photoFile(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}
	return tgbotapi.FileID(ref)
}

func inlineKeyboard(kb moderation.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range kb {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			switch {
			case b.URL != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			case b.Data != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		if len(buttons) > 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
