package localization

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
)

type Localizer struct {
	messages map[string]map[string]string
	fallback string
}

// NewLocalizer loads every locales/<lang>.json file in dir. Keys missing in
// the requested language are looked up in fallback.
func NewLocalizer(dir fs.FS, fallback string, logger *zap.SugaredLogger) (*Localizer, error) {
	messages := make(map[string]map[string]string)

	files, err := fs.ReadDir(dir, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales directory: %w", err)
	}

	for _, file := range files {
		if path.Ext(file.Name()) != ".json" {
			continue
		}
		lang := strings.TrimSuffix(file.Name(), ".json")
		content, err := fs.ReadFile(dir, path.Join("locales", file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read locale file %s: %w", file.Name(), err)
		}

		var langMessages map[string]string
		if err := json.Unmarshal(content, &langMessages); err != nil {
			return nil, fmt.Errorf("failed to parse locale file %s: %w", file.Name(), err)
		}
		messages[lang] = langMessages
		logger.Infof("Loaded language: %s (%d messages)", lang, len(langMessages))
	}

	if _, ok := messages[fallback]; !ok {
		return nil, fmt.Errorf("fallback language %q has no locale file", fallback)
	}
	return &Localizer{messages: messages, fallback: fallback}, nil
}

// GetMessage returns the message for key, or the key itself when no
// language defines it.
func (l *Localizer) GetMessage(lang, key string) string {
	if langMessages, ok := l.messages[lang]; ok {
		if message, ok := langMessages[key]; ok {
			return message
		}
	}

	if message, ok := l.messages[l.fallback][key]; ok {
		return message
	}

	return key
}
