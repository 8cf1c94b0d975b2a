package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shop-post-bot/internal/storage"
)

func (b *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	cmd := message.Command()
	protectedCommands := map[string]bool{commandPending: true, commandStats: true}
	if protectedCommands[cmd] && !b.moderator.IsAdmin(message.From.ID) {
		b.sendText(chatID, b.text("permission_denied"), nil)
		return
	}

	switch cmd {
	case commandStart:
		b.sendText(chatID, b.text("welcome_message"), b.startKeyboard())
	case commandHelp:
		text := b.text("help_message")
		if b.moderator.IsAdmin(message.From.ID) {
			text += b.text("help_admin")
		}
		b.sendText(chatID, text, nil)
	case commandCancel:
		b.handleCancelCommand(message)
	case commandPending:
		b.handlePendingCommand(ctx, message)
	case commandStats:
		b.handleStatsCommand(ctx, message)
	}
}

func (b *TelegramBot) handleCancelCommand(message *tgbotapi.Message) {
	if b.clearUserState(message.From.ID) {
		b.sendText(message.Chat.ID, b.text("action_cancelled"), nil)
		return
	}
	b.sendText(message.Chat.ID, b.text("nothing_to_cancel"), nil)
}

func (b *TelegramBot) handlePendingCommand(ctx context.Context, message *tgbotapi.Message) {
	listings, err := b.moderator.Pending(ctx, message.From.ID)
	if err != nil {
		b.logger.Errorf("Could not list pending listings: %v", err)
		b.sendText(message.Chat.ID, b.text(errorKey(err)), nil)
		return
	}
	if len(listings) == 0 {
		b.sendText(message.Chat.ID, b.text("pending_empty"), nil)
		return
	}

	var builder strings.Builder
	builder.WriteString(b.text("pending_title"))
	for _, l := range listings {
		builder.WriteString(fmt.Sprintf(b.text("pending_item"), l.ID, html.EscapeString(l.ProductName)))
	}
	b.sendText(message.Chat.ID, builder.String(), b.pendingKeyboard(listings))
}

func (b *TelegramBot) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) {
	stats, err := b.stats.ListingStats(ctx)
	if err != nil {
		b.logger.Errorf("Could not load listing stats: %v", err)
		b.sendText(message.Chat.ID, b.text("internal_error"), nil)
		return
	}
	text := fmt.Sprintf(b.text("stats_format"),
		stats[storage.StatusPending],
		stats[storage.StatusApproved],
		stats[storage.StatusPublishing],
		stats[storage.StatusPublished],
		stats[storage.StatusRejected],
	)
	b.sendText(message.Chat.ID, text, nil)
}
