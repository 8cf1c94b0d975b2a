package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shop-post-bot/internal/moderation"
)

func (b *TelegramBot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	callbackAns := tgbotapi.NewCallback(callback.ID, "")
	defer func() {
		if _, err := b.api.Request(callbackAns); err != nil {
			b.logger.Warnf("Failed to answer callback query: %v", err)
		}
	}()

	if !b.moderator.IsAdmin(userID) {
		callbackAns.Text = b.text("permission_denied")
		callbackAns.ShowAlert = true
		return
	}
	action, listingID, err := moderation.ParseCallbackData(callback.Data)
	if err != nil {
		b.logger.Warnf("Ignoring callback from %d: %v", userID, err)
		callbackAns.Text = b.text("invalid_callback")
		callbackAns.ShowAlert = true
		return
	}

	var chatID int64
	var messageID int
	if callback.Message != nil {
		chatID = callback.Message.Chat.ID
		messageID = callback.Message.MessageID
	} else {
		chatID = userID
	}

	switch action {
	case moderation.ActionApprove:
		if err := b.moderator.Approve(ctx, userID, listingID); err != nil {
			b.logger.Warnf("[Listing %d] Approve failed: %v", listingID, err)
			callbackAns.Text = b.text(errorKey(err))
			callbackAns.ShowAlert = true
			return
		}
		b.setUserState(userID, &ConversationState{Step: StateAwaitingSchedule, ListingID: listingID})
		if messageID != 0 {
			b.removeButtons(chatID, messageID)
		}
		b.sendText(chatID, fmt.Sprintf(b.text("ask_schedule"), listingID), nil)

	case moderation.ActionReject:
		if err := b.moderator.Reject(ctx, userID, listingID); err != nil {
			b.logger.Warnf("[Listing %d] Reject failed: %v", listingID, err)
			callbackAns.Text = b.text(errorKey(err))
			callbackAns.ShowAlert = true
			return
		}
		if messageID != 0 {
			b.removeButtons(chatID, messageID)
		}
		b.sendText(chatID, fmt.Sprintf(b.text("listing_rejected"), listingID), nil)
	}
}
