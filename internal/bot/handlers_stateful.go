package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shop-post-bot/internal/moderation"
)

func (b *TelegramBot) handleStatefulMessage(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Step {
	case StateAwaitingSchedule:
		b.handleScheduleReply(ctx, message, state)
	default:
		b.clearUserState(message.From.ID)
	}
}

// handleScheduleReply applies the publish time the administrator typed for
// the listing they just approved. Input errors keep the conversation open so
// the administrator can try again.
func (b *TelegramBot) handleScheduleReply(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	userID := message.From.ID
	chatID := message.Chat.ID

	when, err := moderation.ParseSchedule(message.Text, b.cfg.Location)
	if err != nil {
		b.sendText(chatID, b.text("schedule_invalid_format"), nil)
		return
	}

	// An inline publication runs to completion even during shutdown.
	err = b.moderator.SetSchedule(context.WithoutCancel(ctx), userID, state.ListingID, when)
	switch {
	case err == nil && when.Now:
		b.clearUserState(userID)
		b.sendText(chatID, b.text("published_now"), nil)
	case err == nil:
		b.clearUserState(userID)
		at := when.At.In(b.cfg.Location).Format(moderation.ScheduleLayout)
		b.sendText(chatID, fmt.Sprintf(b.text("schedule_set"), at), nil)
	case errors.Is(err, moderation.ErrInvalidSchedule):
		b.sendText(chatID, b.text("schedule_in_past"), nil)
	default:
		b.logger.Warnf("[Listing %d] Setting schedule failed: %v", state.ListingID, err)
		b.clearUserState(userID)
		b.sendText(chatID, b.text(errorKey(err)), nil)
	}
}
