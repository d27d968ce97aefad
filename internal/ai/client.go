package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxTokens      = 4096
	extractionTemperature = 0.2
)

type Message struct {
	Role    string
	Content string
	Images  []InlineImage
}

// InlineImage передается провайдеру в теле запроса в base64.
type InlineImage struct {
	MimeType string
	Data     []byte
}

// Client отправляет диалог модели и возвращает текст ответа и сырое тело ответа API.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, []byte, error)
}

// providerAPI общая часть HTTP-клиентов провайдеров.
type providerAPI struct {
	name      string
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

func newProviderAPI(name, apiKey, baseURL, model string, timeout time.Duration, maxTokens int) providerAPI {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return providerAPI{
		name:      name,
		apiKey:    strings.TrimSpace(apiKey),
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		maxTokens: maxTokens,
		http:      &http.Client{Timeout: timeout},
	}
}

// post отправляет JSON и возвращает тело ответа. При статусе вне 2xx тело
// тоже возвращается, чтобы попасть в журнал.
func (p providerAPI) post(ctx context.Context, path string, headers map[string]string, request any) ([]byte, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s api key is missing", p.name)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	res, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", p.name, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", p.name, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return body, fmt.Errorf("%s api error (status %d): %s", p.name, res.StatusCode, apiErrorMessage(body))
	}

	return body, nil
}

// apiErrorMessage достает error.message из тела ответа; оба провайдера
// отдают ошибки в таком виде.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}
