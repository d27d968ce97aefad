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

// GroqClient ходит в OpenAI-совместимый chat/completions Groq.
type GroqClient struct {
	api providerAPI
}

type groqChatRequest struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

// groqMessage.Content содержит строку либо список частей с изображениями.
type groqMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type groqContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *groqImageURL `json:"image_url,omitempty"`
}

type groqImageURL struct {
	URL string `json:"url"`
}

type groqChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewGroqClient создает клиент Groq.
func NewGroqClient(apiKey, baseURL, model string, timeout time.Duration, maxTokens int) *GroqClient {
	return &GroqClient{api: newProviderAPI("groq", apiKey, baseURL, model, timeout, maxTokens)}
}

func (c *GroqClient) Chat(ctx context.Context, messages []Message) (string, []byte, error) {
	request := groqChatRequest{
		Model:          c.api.model,
		Messages:       groqMessages(messages),
		Temperature:    extractionTemperature,
		MaxTokens:      c.api.maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	body, err := c.api.post(ctx, "/chat/completions", map[string]string{"Authorization": "Bearer " + c.api.apiKey}, request)
	if err != nil {
		return "", body, err
	}

	var parsed groqChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", body, fmt.Errorf("decode groq response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", body, errors.New("groq response has no choices")
	}

	choice := parsed.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", body, fmt.Errorf("groq returned empty content (finish reason %q)", choice.FinishReason)
	}
	return choice.Message.Content, body, nil
}

// groqMessages оставляет текстовые сообщения строкой, а сообщения с
// изображениями собирает из частей с data URL.
func groqMessages(messages []Message) []groqMessage {
	result := make([]groqMessage, 0, len(messages))
	for _, message := range messages {
		if len(message.Images) == 0 {
			result = append(result, groqMessage{Role: message.Role, Content: message.Content})
			continue
		}

		parts := make([]groqContentPart, 0, len(message.Images)+1)
		if text := strings.TrimSpace(message.Content); text != "" {
			parts = append(parts, groqContentPart{Type: "text", Text: text})
		}
		for _, image := range message.Images {
			url := "data:" + image.MimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
			parts = append(parts, groqContentPart{Type: "image_url", ImageURL: &groqImageURL{URL: url}})
		}
		result = append(result, groqMessage{Role: message.Role, Content: parts})
	}
	return result
}
