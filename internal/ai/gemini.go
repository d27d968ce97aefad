package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GeminiClient ходит в generateContent Google Generative Language API.
type GeminiClient struct {
	api providerAPI
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiConfig    `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// NewGeminiClient создает клиент Gemini.
func NewGeminiClient(apiKey, baseURL, model string, timeout time.Duration, maxTokens int) *GeminiClient {
	return &GeminiClient{api: newProviderAPI("gemini", apiKey, baseURL, model, timeout, maxTokens)}
}

func (c *GeminiClient) Chat(ctx context.Context, messages []Message) (string, []byte, error) {
	request, err := c.buildRequest(messages)
	if err != nil {
		return "", nil, err
	}

	path := fmt.Sprintf("/models/%s:generateContent", c.api.model)
	body, err := c.api.post(ctx, path, map[string]string{"x-goog-api-key": c.api.apiKey}, request)
	if err != nil {
		return "", body, err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", body, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", body, errors.New("gemini response has no candidates")
	}

	candidate := parsed.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", body, fmt.Errorf("gemini returned empty content (finish reason %q)", candidate.FinishReason)
	}

	return text.String(), body, nil
}

// buildRequest раскладывает диалог: system уходит в systemInstruction,
// assistant становится ролью model.
func (c *GeminiClient) buildRequest(messages []Message) (geminiRequest, error) {
	request := geminiRequest{
		GenerationConfig: geminiConfig{
			Temperature:      extractionTemperature,
			MaxOutputTokens:  c.api.maxTokens,
			ResponseMimeType: "application/json",
		},
	}

	var system []geminiPart
	for _, message := range messages {
		parts := geminiParts(message)
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(message.Role)) {
		case "system":
			system = append(system, parts...)
		case "assistant", "model":
			request.Contents = append(request.Contents, geminiContent{Role: "model", Parts: parts})
		default:
			request.Contents = append(request.Contents, geminiContent{Role: "user", Parts: parts})
		}
	}

	if len(request.Contents) == 0 {
		return request, errors.New("gemini request has no user content")
	}
	if len(system) > 0 {
		request.SystemInstruction = &geminiContent{Parts: system}
	}
	return request, nil
}

func geminiParts(message Message) []geminiPart {
	parts := make([]geminiPart, 0, len(message.Images)+1)
	if text := strings.TrimSpace(message.Content); text != "" {
		parts = append(parts, geminiPart{Text: text})
	}
	for _, image := range message.Images {
		parts = append(parts, geminiPart{InlineData: &geminiBlob{
			MimeType: image.MimeType,
			Data:     base64.StdEncoding.EncodeToString(image.Data),
		}})
	}
	return parts
}
