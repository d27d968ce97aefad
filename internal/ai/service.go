package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const extractionSystemPrompt = "You read shop receipts. Respond with JSON only, without extra text."

var (
	requiredExtractionFields = []string{"vendor_name", "total_amount", "date"}
	requiredItemFields       = []string{"description", "quantity", "unit_price", "total_price"}
)

// ModelExtractor распознает чек через чат-модель с поддержкой изображений.
type ModelExtractor struct {
	client     Client
	provider   string
	model      string
	categories []string
}

// NewModelExtractor создает распознаватель поверх клиента провайдера.
func NewModelExtractor(client Client, provider, model string, categories []string) *ModelExtractor {
	return &ModelExtractor{
		client:     client,
		provider:   provider,
		model:      model,
		categories: categories,
	}
}

// ExtractReceipt отправляет изображение модели и проверяет ответ.
func (e *ModelExtractor) ExtractReceipt(ctx context.Context, image Image) (Extraction, Trace, error) {
	prompt := buildExtractionPrompt(e.categories)
	trace := Trace{Provider: e.provider, Model: e.model, Prompt: prompt}

	if len(image.Data) == 0 {
		return Extraction{}, trace, errors.New("receipt image is empty")
	}

	messages := []Message{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: prompt, Images: []InlineImage{{MimeType: image.MimeType, Data: image.Data}}},
	}

	content, raw, err := e.client.Chat(ctx, messages)
	trace.Raw = raw
	if err != nil {
		return Extraction{}, trace, err
	}

	extraction, err := decodeExtraction(content)
	if err != nil {
		return Extraction{}, trace, err
	}

	return extraction, trace, nil
}

func buildExtractionPrompt(categories []string) string {
	categoryList := "any short category name"
	if len(categories) > 0 {
		categoryList = `one of "` + strings.Join(categories, `", "`) + `"`
	}

	return fmt.Sprintf(`Extract the purchase from the attached receipt image.

Requirements:
- Output JSON only, no code fences, no extra text.
- Amounts are numbers with two decimals, no currency symbols.
- date uses the format printed on the receipt (YYYY-MM-DD or DD/MM/YY).
- expense_category is %s.
- is_deductible is true when the purchase is a plausible business or tax-relief expense.
- Schema:
{
  "vendor_name": string,
  "vendor_address": string,
  "date": string,
  "currency": string,
  "total_amount": number,
  "payment_method": string,
  "notes": string,
  "is_deductible": boolean,
  "items": [
    {"description": string, "quantity": number, "unit_price": number, "total_price": number, "expense_category": string}
  ]
}`, categoryList)
}

// decodeExtraction разбирает ответ модели и проверяет обязательные поля.
func decodeExtraction(content string) (Extraction, error) {
	payload := extractJSON(content)
	if payload == "" {
		return Extraction{}, errors.New("ai response does not contain json")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Extraction{}, err
	}

	if err := requireFields(fields, requiredExtractionFields, "ai response missing required field: %s"); err != nil {
		return Extraction{}, err
	}

	if rawItems, ok := fields["items"]; ok && !isNull(rawItems) {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return Extraction{}, fmt.Errorf("ai response items: %w", err)
		}
		for idx, item := range items {
			if err := requireFields(item, requiredItemFields, fmt.Sprintf("item at index %d missing required field: %%s", idx)); err != nil {
				return Extraction{}, err
			}
		}
	}

	var extraction Extraction
	if err := json.Unmarshal([]byte(payload), &extraction); err != nil {
		return Extraction{}, err
	}

	extraction.VendorName = strings.TrimSpace(extraction.VendorName)
	if extraction.VendorName == "" {
		return Extraction{}, errors.New("ai response missing required field: vendor_name")
	}
	if extraction.Items == nil {
		extraction.Items = make([]ExtractionItem, 0)
	}

	return extraction, nil
}

func requireFields(fields map[string]json.RawMessage, names []string, format string) error {
	for _, name := range names {
		value, ok := fields[name]
		if !ok || isNull(value) {
			return fmt.Errorf(format, name)
		}
	}
	return nil
}

func isNull(value json.RawMessage) bool {
	return strings.TrimSpace(string(value)) == "null"
}

func extractJSON(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
		trimmed = strings.TrimSpace(trimmed)
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return trimmed[start : end+1]
}
