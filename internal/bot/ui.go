package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shop-post-bot/internal/moderation"
	"shop-post-bot/internal/storage"
)

// startKeyboard links to the submission form, or is nil when no form URL is
// configured.
func (b *TelegramBot) startKeyboard() *tgbotapi.InlineKeyboardMarkup {
	if b.cfg.WebAppURL == "" {
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL(b.text("btn_open_form"), b.cfg.WebAppURL),
	))
	return &keyboard
}

// pendingKeyboard has an approve/reject row per listing, capped so the
// markup stays within Telegram's limits.
func (b *TelegramBot) pendingKeyboard(listings []*storage.Listing) *tgbotapi.InlineKeyboardMarkup {
	const maxRows = 20
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, l := range listings {
		if i == maxRows {
			break
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(b.text("btn_approve")+" #"+strconv.FormatInt(l.ID, 10), moderation.CallbackData(moderation.ActionApprove, l.ID)),
			tgbotapi.NewInlineKeyboardButtonData(b.text("btn_reject")+" #"+strconv.FormatInt(l.ID, 10), moderation.CallbackData(moderation.ActionReject, l.ID)),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

// removeButtons strips the moderation buttons from a handled card.
func (b *TelegramBot) removeButtons(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Warnf("Failed to remove buttons from message %d: %v", messageID, err)
	}
}
