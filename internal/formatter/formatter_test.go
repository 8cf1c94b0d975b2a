package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-post-bot/internal/storage"
)

var phoneCategory = &storage.Category{
	ID:         1,
	Name:       "Смартфон (Android)",
	Emoji:      "📱",
	SpecFields: []string{"Память", "Оперативная память", "Цвет"},
}

func sampleListing() *storage.Listing {
	return &storage.Listing{
		ID:           7,
		CategoryID:   1,
		ProductName:  "Samsung Galaxy S21",
		Specs:        map[string]string{"Цвет": "Чёрный", "Память": "128 ГБ"},
		Photos:       []string{"photo-1", "photo-2"},
		ExternalLink: "https://www.avito.ru/item/1",
		Price:        "500",
	}
}

func TestRenderDefaultLayout(t *testing.T) {
	body, err := Render(sampleListing(), phoneCategory, nil)
	require.NoError(t, err)

	assert.Contains(t, body, "📱 <b>Samsung Galaxy S21</b>")
	assert.Contains(t, body, "💰 Цена: <b>500</b>")
	assert.Contains(t, body, "💾 <b>Память:</b> 128 ГБ")
	assert.Contains(t, body, "🎨 <b>Цвет:</b> Чёрный")
	assert.NotContains(t, body, "ID товара")
	assert.NotContains(t, body, "Адрес магазина")
	assert.NotContains(t, body, NoSpecifications)

	title := strings.Index(body, "Samsung")
	price := strings.Index(body, "Цена")
	memory := strings.Index(body, "Память")
	color := strings.Index(body, "Цвет")
	link := strings.Index(body, "https://www.avito.ru/item/1")
	assert.True(t, title < price && price < memory && memory < color && color < link)
}

func TestRenderDefaultOrdering(t *testing.T) {
	l := sampleListing()
	l.ExternalID = "A-1"
	l.ShopAddress = "г. Москва"
	l.ContactLink = "@shop"

	body, err := Render(l, phoneCategory, nil)
	require.NoError(t, err)

	positions := []int{
		strings.Index(body, "Samsung"),
		strings.Index(body, "Цена"),
		strings.Index(body, "A-1"),
		strings.Index(body, "Характеристики"),
		strings.Index(body, "г. Москва"),
		strings.Index(body, "avito.ru"),
		strings.Index(body, "@shop"),
	}
	for i := 1; i < len(positions); i++ {
		assert.Greater(t, positions[i], positions[i-1], "segment %d out of order", i)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	l := sampleListing()
	l.Specs["Гарантия"] = "1 год"
	l.Specs["Вес"] = "170 г"
	tpl := &storage.Template{Body: "{product_name}\n{specifications}"}

	for _, template := range []*storage.Template{nil, tpl} {
		first, err := Render(l, phoneCategory, template)
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			again, err := Render(l, phoneCategory, template)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestRenderEmptySpecs(t *testing.T) {
	l := sampleListing()
	l.Specs = map[string]string{}

	body, err := Render(l, phoneCategory, nil)
	require.NoError(t, err)
	assert.Contains(t, body, "<b>Характеристики:</b>\n"+NoSpecifications)

	body, err = Render(l, phoneCategory, &storage.Template{Body: "Specs:\n{specifications}"})
	require.NoError(t, err)
	assert.Equal(t, "Specs:\n"+NoSpecifications, body)
}

func TestRenderSkipsBlankSpecValues(t *testing.T) {
	l := sampleListing()
	l.Specs = map[string]string{"Память": "", "Цвет": NotSpecified}

	body, err := Render(l, phoneCategory, &storage.Template{Body: "{specifications}"})
	require.NoError(t, err)
	assert.Equal(t, NoSpecifications, body)
}

func TestRenderTemplate(t *testing.T) {
	l := sampleListing()
	l.ContactLink = "@shop"
	tpl := &storage.Template{
		Body: "{category} | {product_name} | {price} | {product_id} | {shop_address} | {shop_profile_link} | {avito_link} | {unknown}",
	}

	body, err := Render(l, phoneCategory, tpl)
	require.NoError(t, err)
	assert.Equal(t,
		"📱 Смартфон (Android) | Samsung Galaxy S21 | 500 | Не указано | Не указано | @shop | https://www.avito.ru/item/1 | {unknown}",
		body)
}

func TestRenderTemplateRepeatedPlaceholders(t *testing.T) {
	tpl := &storage.Template{Body: "{product_name} / {product_name}"}
	body, err := Render(sampleListing(), phoneCategory, tpl)
	require.NoError(t, err)
	assert.Equal(t, "Samsung Galaxy S21 / Samsung Galaxy S21", body)
}

func TestRenderTemplateSpecOrder(t *testing.T) {
	l := sampleListing()
	l.Specs = map[string]string{
		"Цвет":               "Синий",
		"Вес":                "170 г",
		"Оперативная память": "8 ГБ",
		"Память":             "256 ГБ",
		"Гарантия":           "1 год",
	}

	body, err := Render(l, phoneCategory, &storage.Template{Body: "{specifications}"})
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"💾 Память: <b>256 ГБ</b>",
		"🧠 Оперативная память: <b>8 ГБ</b>",
		"🎨 Цвет: <b>Синий</b>",
		"⚖️ Вес: <b>170 г</b>",
		"🛡 Гарантия: <b>1 год</b>",
	}, "\n"), body)
}

func TestRenderEscapesHTML(t *testing.T) {
	l := sampleListing()
	l.ProductName = "<script>alert(1)</script>"
	l.Specs = map[string]string{"Цвет": "Red & Blue"}

	body, err := Render(l, phoneCategory, nil)
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "Red &amp; Blue")
}

func TestRenderTooLong(t *testing.T) {
	l := sampleListing()
	l.Specs = map[string]string{"Описание": strings.Repeat("я", MaxCaptionLength)}

	_, err := Render(l, phoneCategory, nil)
	assert.ErrorIs(t, err, ErrTooLong)

	l.Photos = nil
	_, err = Render(l, phoneCategory, nil)
	assert.NoError(t, err)
}

func TestRenderLimitCountsVisibleText(t *testing.T) {
	l := sampleListing()
	l.Specs = map[string]string{"Комплект": strings.Repeat("&", 600)}

	body, err := Render(l, phoneCategory, nil)
	require.NoError(t, err, "markup and entities do not count toward the caption limit")
	assert.Greater(t, len([]rune(body)), MaxCaptionLength)
	assert.Contains(t, body, "&amp;&amp;")
	assert.LessOrEqual(t, visibleLength(body), MaxCaptionLength)

	l.Specs = map[string]string{"Комплект": strings.Repeat("&", MaxCaptionLength)}
	_, err = Render(l, phoneCategory, nil)
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestVisibleLength(t *testing.T) {
	assert.Equal(t, 9, visibleLength("<b>Цена:</b> &lt;5&gt;"))
	assert.Equal(t, 3, visibleLength(`<a href="https://example.com/very/long/link">abc</a>`))
}

func TestSpecEmoji(t *testing.T) {
	cases := map[string]string{
		"Оперативная память": "🧠",
		"Встроенная ПАМЯТЬ":  "💾",
		"Процессор":          "⚙️",
		"Дисплей":            "📱",
		"Основная камера":    "📷",
		"Ёмкость батареи":    "🔋",
		"SSD":                "💽",
		"Поддержка SIM":      "📶",
		"Комплектация":       "📦",
		"Разъём":             defaultBullet,
	}
	for name, want := range cases {
		assert.Equal(t, want, SpecEmoji(name), name)
	}
}
