package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const RequestTypeReceiptExtraction = "receipt_extraction"

type AIRepository struct {
	db *pgxpool.Pool
}

// ExtractionLog описывает одно обращение к распознаванию чека.
// ReceiptID пуст, если изображение загружено без привязки к чеку.
type ExtractionLog struct {
	UserID    uuid.UUID
	ReceiptID *uuid.UUID
	Provider  string
	Model     string
	Prompt    string
	Result    []byte
	Raw       []byte
	Duration  time.Duration
	Err       error
}

// NewAIRepository создает репозиторий журнала распознавания.
func NewAIRepository(db *pgxpool.Pool) *AIRepository {
	return &AIRepository{db: db}
}

func (r *AIRepository) RecordExtraction(ctx context.Context, entry ExtractionLog) error {
	var errorMessage *string
	if entry.Err != nil {
		msg := entry.Err.Error()
		errorMessage = &msg
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_requests
		 (user_id, receipt_id, request_type, provider, model, prompt, response_payload,
		  raw_response, success, error_message, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11)`,
		entry.UserID,
		entry.ReceiptID,
		RequestTypeReceiptExtraction,
		entry.Provider,
		entry.Model,
		nullableText(entry.Prompt),
		nullableText(string(entry.Result)),
		nullableText(string(entry.Raw)),
		entry.Err == nil,
		errorMessage,
		entry.Duration.Milliseconds(),
	)
	return err
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
