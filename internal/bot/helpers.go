package bot

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shop-post-bot/internal/moderation"
)

func (b *TelegramBot) setUserState(userID int64, state *ConversationState) {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	b.userStates[userID] = state
}

func (b *TelegramBot) getUserState(userID int64) (*ConversationState, bool) {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	state, ok := b.userStates[userID]
	return state, ok
}

// clearUserState reports whether there was a state to clear.
func (b *TelegramBot) clearUserState(userID int64) bool {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	_, ok := b.userStates[userID]
	delete(b.userStates, userID)
	return ok
}

func (b *TelegramBot) text(key string) string {
	return b.localizer.GetMessage(b.cfg.Language, key)
}

func (b *TelegramBot) sendText(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Errorf("Failed to send message to %d: %v", chatID, err)
	}
}

// errorKey maps a moderation error to the message shown to the administrator.
func errorKey(err error) string {
	switch {
	case errors.Is(err, moderation.ErrNotFound):
		return "listing_not_found"
	case errors.Is(err, moderation.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, moderation.ErrInvalidState):
		return "listing_invalid_state"
	case errors.Is(err, moderation.ErrInvalidSchedule):
		return "schedule_in_past"
	case errors.Is(err, moderation.ErrAlreadyClaimed):
		return "publish_in_progress"
	case errors.Is(err, moderation.ErrDeliveryFailed), errors.Is(err, moderation.ErrRenderFailed):
		return "publish_failed_retry"
	default:
		return "internal_error"
	}
}
