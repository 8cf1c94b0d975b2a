// Package formatter turns a stored listing into the HTML body posted to the
// channel, either through an admin-authored template or the built-in layout.
package formatter

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"shop-post-bot/internal/storage"
)

const (
	// NotSpecified replaces placeholders whose listing attribute is empty.
	NotSpecified = "Не указано"
	// NoSpecifications stands in for an empty characteristics block.
	NoSpecifications = "Характеристики не указаны"

	MaxCaptionLength = 1024
	MaxTextLength    = 4096
)

var ErrTooLong = errors.New("formatter: rendered body exceeds message limit")

// Render produces the post body. tpl may be nil, in which case the built-in
// layout is used. Output depends only on the arguments.
func Render(l *storage.Listing, category *storage.Category, tpl *storage.Template) (string, error) {
	if l == nil {
		return "", errors.New("formatter: nil listing")
	}
	if category == nil {
		category = &storage.Category{}
	}

	var body string
	if tpl != nil && strings.TrimSpace(tpl.Body) != "" {
		body = renderTemplate(l, category, tpl.Body)
	} else {
		body = renderDefault(l, category)
	}

	limit := MaxTextLength
	if len(l.Photos) > 0 {
		limit = MaxCaptionLength
	}
	if n := visibleLength(body); n > limit {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrTooLong, n, limit)
	}
	return body, nil
}

// visibleLength counts the characters Telegram shows once the HTML markup is
// parsed: tags do not count and an entity is one character.
func visibleLength(body string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return utf8.RuneCountInString(body)
	}
	return utf8.RuneCountInString(doc.Text())
}

func orNotSpecified(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return NotSpecified
	}
	return html.EscapeString(v)
}

func renderTemplate(l *storage.Listing, category *storage.Category, body string) string {
	replacer := strings.NewReplacer(
		"{product_name}", html.EscapeString(l.ProductName),
		"{category}", orNotSpecified(category.Label()),
		"{price}", orNotSpecified(l.Price),
		"{product_id}", orNotSpecified(l.ExternalID),
		"{shop_address}", orNotSpecified(l.ShopAddress),
		"{shop_profile_link}", orNotSpecified(l.ContactLink),
		"{avito_link}", html.EscapeString(l.ExternalLink),
		"{specifications}", specLines(l.Specs, category.SpecFields, "%s %s: <b>%s</b>"),
	)
	return replacer.Replace(body)
}

func renderDefault(l *storage.Listing, category *storage.Category) string {
	var b strings.Builder

	icon := category.Emoji
	if icon == "" {
		icon = "📦"
	}
	fmt.Fprintf(&b, "%s <b>%s</b>\n", icon, html.EscapeString(l.ProductName))
	if category.Name != "" {
		fmt.Fprintf(&b, "📂 Категория: %s\n", html.EscapeString(category.Name))
	}
	if price := strings.TrimSpace(l.Price); price != "" {
		fmt.Fprintf(&b, "💰 Цена: <b>%s</b>\n", html.EscapeString(price))
	}
	if id := strings.TrimSpace(l.ExternalID); id != "" {
		fmt.Fprintf(&b, "🆔 ID товара: <code>%s</code>\n", html.EscapeString(id))
	}

	b.WriteString("\n⚙️ <b>Характеристики:</b>\n")
	b.WriteString(specLines(l.Specs, category.SpecFields, "%s <b>%s:</b> %s"))
	b.WriteString("\n")

	if addr := strings.TrimSpace(l.ShopAddress); addr != "" {
		fmt.Fprintf(&b, "\n📍 <b>Адрес магазина:</b>\n%s\n", html.EscapeString(addr))
	}

	fmt.Fprintf(&b, "\n🔗 <b>Ссылка на объявление:</b>\n%s\n\n", html.EscapeString(l.ExternalLink))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	if contact := strings.TrimSpace(l.ContactLink); contact != "" {
		fmt.Fprintf(&b, "💬 По вопросам: %s", html.EscapeString(contact))
	} else {
		b.WriteString("💬 По вопросам обращайтесь в личные сообщения")
	}
	return b.String()
}

// specLines renders one line per populated spec. Fields follow the category's
// order; fields the category does not know come after, sorted by name.
func specLines(specs map[string]string, order []string, lineFormat string) string {
	var lines []string
	seen := make(map[string]bool, len(order))
	add := func(name string) {
		value := strings.TrimSpace(specs[name])
		if value == "" || value == NotSpecified {
			return
		}
		lines = append(lines, fmt.Sprintf(lineFormat, SpecEmoji(name), html.EscapeString(name), html.EscapeString(value)))
	}

	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		add(name)
	}

	var extra []string
	for name := range specs {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		add(name)
	}

	if len(lines) == 0 {
		return NoSpecifications
	}
	return strings.Join(lines, "\n")
}
