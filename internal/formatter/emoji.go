package formatter

import "strings"

const defaultBullet = "•"

// Checked in order, so "оперативн" wins over "память" for "Оперативная память".
var specEmojis = []struct {
	keys  []string
	emoji string
}{
	{[]string{"оперативн"}, "🧠"},
	{[]string{"память", "memory"}, "💾"},
	{[]string{"процессор", "cpu"}, "⚙️"},
	{[]string{"экран", "дисплей", "display"}, "📱"},
	{[]string{"камера", "camera"}, "📷"},
	{[]string{"аккумулятор", "батаре", "battery"}, "🔋"},
	{[]string{"цвет", "color"}, "🎨"},
	{[]string{"состояни"}, "✨"},
	{[]string{"видеокарт", "gpu"}, "🎮"},
	{[]string{"накопител", "ssd", "hdd"}, "💽"},
	{[]string{"sim"}, "📶"},
	{[]string{"вес"}, "⚖️"},
	{[]string{"гарант"}, "🛡"},
	{[]string{"комплект"}, "📦"},
}

// SpecEmoji picks a decoration for a spec field by case-insensitive substring
// match, falling back to a plain bullet.
func SpecEmoji(name string) string {
	lower := strings.ToLower(name)
	for _, e := range specEmojis {
		for _, key := range e.keys {
			if strings.Contains(lower, key) {
				return e.emoji
			}
		}
	}
	return defaultBullet
}
