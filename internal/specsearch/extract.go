package specsearch

import (
	"regexp"
	"strings"
)

// specPatterns recognise common "Name: value" lines on product pages. The
// first group is the value.
var specPatterns = map[string]*regexp.Regexp{
	"Память":             regexp.MustCompile(`(?i)(?:Встроенная память|Память|Storage|ROM)[:\s]+(\d+\s*(?:GB|ГБ|TB|ТБ))`),
	"Оперативная память": regexp.MustCompile(`(?i)(?:Оперативная память|ОЗУ|RAM)[:\s]+(\d+\s*(?:GB|ГБ))`),
	"Процессор":          regexp.MustCompile(`(?i)(?:Процессор|Chipset|CPU|Processor)[:\s]+([A-Za-z0-9][A-Za-z0-9 -]*)`),
	"Экран":              regexp.MustCompile(`(?i)(?:Экран|Диагональ|Display|Screen)[:\s]+(\d+(?:[.,]\d+)?\s*(?:"|″|дюйм\S*|inch\S*))`),
	"Камера":             regexp.MustCompile(`(?i)(?:Основная камера|Камера|Camera)[:\s]+(\d+\s*(?:МП|MP))`),
	"Аккумулятор":        regexp.MustCompile(`(?i)(?:Аккумулятор|Батарея|Battery)[:\s]+(\d+\s*(?:мАч|mAh))`),
	"Накопитель":         regexp.MustCompile(`(?i)(?:Накопитель|SSD|HDD|Storage)[:\s]+(\d+\s*(?:GB|ГБ|TB|ТБ))`),
	"Видеокарта":         regexp.MustCompile(`(?i)(?:Видеокарта|GPU|Graphics)[:\s]+([A-Za-z0-9][A-Za-z0-9 -]*)`),
	"Блок питания":       regexp.MustCompile(`(?i)(?:Блок питания|PSU|Power supply)[:\s]+(\d+\s*(?:W|Вт))`),
}

const maxValueLength = 60

// extractSpecs pulls values for fields out of free text. Fields without a
// known pattern or without a match are omitted.
func extractSpecs(text string, fields []string) map[string]string {
	specs := make(map[string]string)
	for _, field := range fields {
		re, ok := specPatterns[field]
		if !ok {
			continue
		}
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[1])
		if r := []rune(value); len(r) > maxValueLength {
			value = strings.TrimSpace(string(r[:maxValueLength]))
		}
		if value != "" {
			specs[field] = value
		}
	}
	return specs
}
