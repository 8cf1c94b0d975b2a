package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// maxPageRunes caps the page text sent to the model.
const maxPageRunes = 12000

const promptFormat = `Ты помогаешь магазину электроники заполнять карточки товаров.
Товар: %s
Заполни характеристики: %s.
Ответь только JSON-объектом, где ключи в точности совпадают с названиями характеристик, а значения короткие строки.
Если значение неизвестно, не включай ключ.`

// SpecExtractor asks Gemini for product characteristics.
type SpecExtractor struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewSpecExtractor(ctx context.Context, apiKey, modelName string) (*SpecExtractor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"
	return &SpecExtractor{client: client, model: model}, nil
}

// ExtractSpecs returns values for the requested fields. pageText is optional
// context scraped from a product page.
func (e *SpecExtractor) ExtractSpecs(ctx context.Context, productName string, fields []string, pageText string) (map[string]string, error) {
	if strings.TrimSpace(productName) == "" || len(fields) == 0 {
		return map[string]string{}, nil
	}

	resp, err := e.model.GenerateContent(ctx, genai.Text(buildPrompt(productName, fields, pageText)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("received an empty response from AI")
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			reply.WriteString(string(text))
		}
	}
	return parseSpecs(reply.String(), fields)
}

func (e *SpecExtractor) Close() error {
	return e.client.Close()
}

func buildPrompt(productName string, fields []string, pageText string) string {
	prompt := fmt.Sprintf(promptFormat, productName, strings.Join(fields, ", "))
	pageText = strings.TrimSpace(pageText)
	if pageText == "" {
		return prompt
	}
	if utf8.RuneCountInString(pageText) > maxPageRunes {
		pageText = string([]rune(pageText)[:maxPageRunes])
	}
	return prompt + "\n\nТекст страницы товара:\n\"" + pageText + "\""
}

// parseSpecs decodes the model's JSON reply and keeps only the requested
// fields with non-empty values. Markdown code fences are tolerated.
func parseSpecs(reply string, fields []string) (map[string]string, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	var raw map[string]any
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return nil, fmt.Errorf("unexpected response format from AI: %w", err)
	}

	specs := make(map[string]string, len(fields))
	for _, field := range fields {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		value := strings.TrimSpace(fmt.Sprint(v))
		if value == "" || strings.EqualFold(value, "Не указано") {
			continue
		}
		specs[field] = value
	}
	return specs, nil
}
