// Package preferences converts questionnaire answers to and from the text
// column they are stored in.
package preferences

import (
	"bytes"
	"encoding/json"
)

// EncodeAnswer переводит ответ из JSON запроса в строку для хранения.
// Строки сохраняются как есть, остальные значения как JSON-текст.
// Для null возвращается ok=false: такой ответ не сохраняется.
func EncodeAnswer(raw json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false, nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", false, err
		}
		return text, true, nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return "", false, err
	}
	return compact.String(), true, nil
}

// DecodeAnswer пробует разобрать сохраненный ответ как JSON и при неудаче
// возвращает исходную строку.
func DecodeAnswer(stored string) any {
	if !json.Valid([]byte(stored)) {
		return stored
	}

	var value any
	if err := json.Unmarshal([]byte(stored), &value); err != nil {
		return stored
	}
	return value
}
