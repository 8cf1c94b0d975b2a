package moderation

import (
	"fmt"
	"strconv"
	"strings"

	"shop-post-bot/internal/storage"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// CallbackData encodes a moderation button payload, e.g. "approve:12".
func CallbackData(action string, listingID int64) string {
	return fmt.Sprintf("%s:%d", action, listingID)
}

// ParseCallbackData is the inverse of CallbackData.
func ParseCallbackData(data string) (action string, listingID int64, err error) {
	action, rawID, ok := strings.Cut(data, ":")
	if !ok || (action != ActionApprove && action != ActionReject) {
		return "", 0, fmt.Errorf("unknown callback data %q", data)
	}
	listingID, err = strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listing id in callback data %q: %w", data, err)
	}
	return action, listingID, nil
}

// ContactURL turns a Telegram handle ("@shop" or "shop") into a profile URL.
// Links that already carry a scheme are returned unchanged.
func ContactURL(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return "https://t.me/" + strings.TrimPrefix(link, "@")
}

// listingKeyboard is the button row attached to a channel post: the contact
// button when a contact link is known, then the link to the listing itself.
func listingKeyboard(texts Texts, lang string, l *storage.Listing) Keyboard {
	var row []Button
	if contact := ContactURL(l.ContactLink); contact != "" {
		row = append(row, Button{Text: texts.GetMessage(lang, "btn_contact_shop"), URL: contact})
	}
	row = append(row, Button{Text: texts.GetMessage(lang, "btn_view_listing"), URL: l.ExternalLink})
	return Keyboard{row}
}

func moderationKeyboard(texts Texts, lang string, listingID int64) Keyboard {
	return Keyboard{{
		{Text: texts.GetMessage(lang, "btn_approve"), Data: CallbackData(ActionApprove, listingID)},
		{Text: texts.GetMessage(lang, "btn_reject"), Data: CallbackData(ActionReject, listingID)},
	}}
}
