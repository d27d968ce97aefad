package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type AdminRepository struct {
	db *pgxpool.Pool
}

// Window задает страницу выборки.
type Window struct {
	Limit  int
	Offset int
}

// AdminUser описывает пользователя вместе со сводкой по его чекам.
type AdminUser struct {
	ID              uuid.UUID
	Email           string
	Name            *string
	DataFilled      bool
	ReceiptCount    int
	TotalSpent      decimal.Decimal
	LastReceiptDate *time.Time
	CreatedAt       time.Time
}

type AIRequestFilter struct {
	UserID   *uuid.UUID
	Success  *bool
	Provider *string
	Since    *time.Time
}

type AIRequestRecord struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ReceiptID       *uuid.UUID
	RequestType     string
	Provider        string
	Model           string
	Prompt          *string
	ResponsePayload []byte
	RawResponse     *string
	Success         bool
	ErrorMessage    *string
	DurationMS      int
	CreatedAt       time.Time
}

// DailyActivity считает новые чеки и обращения к распознаванию за день.
type DailyActivity struct {
	Day        time.Time
	Receipts   int
	AIRequests int
}

type DeductibilityUsage struct {
	Name  string
	Items int
}

type Usage struct {
	Users             int
	ProfilesFilled    int
	Receipts          int
	ReceiptItems      int
	UnclassifiedItems int
	ByDeductibility   []DeductibilityUsage
	AIRequests        int
	AIFailures        int
	Daily             []DailyActivity
}

// NewAdminRepository создает репозиторий для админских запросов.
func NewAdminRepository(db *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{db: db}
}

// ListUsers возвращает страницу пользователей и их общее число.
func (r *AdminRepository) ListUsers(ctx context.Context, window Window) ([]AdminUser, int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id, u.email, u.name, u.data_filled,
		        COUNT(rc.id) AS receipt_count,
		        COALESCE(SUM(rc.total_amount), 0) AS total_spent,
		        MAX(rc.receipt_date) AS last_receipt_date,
		        u.created_at,
		        COUNT(*) OVER () AS total
		 FROM users u
		 LEFT JOIN receipts rc ON rc.user_id = u.id
		 GROUP BY u.id
		 ORDER BY u.created_at DESC
		 LIMIT $1 OFFSET $2`,
		window.Limit, window.Offset,
	)
	if err != nil {
		return nil, 0, err
	}

	total := 0
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AdminUser, error) {
		var user AdminUser
		err := row.Scan(
			&user.ID,
			&user.Email,
			&user.Name,
			&user.DataFilled,
			&user.ReceiptCount,
			&user.TotalSpent,
			&user.LastReceiptDate,
			&user.CreatedAt,
			&total,
		)
		return user, err
	})
	if err != nil {
		return nil, 0, err
	}
	if len(users) == 0 && window.Offset > 0 {
		if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
			return nil, 0, err
		}
	}

	return users, total, nil
}

// ListAIRequests возвращает журнал распознавания по фильтру. Тексты промпта
// и ответов читаются только при withPayloads.
func (r *AdminRepository) ListAIRequests(ctx context.Context, filter AIRequestFilter, window Window, withPayloads bool) ([]AIRequestRecord, int, error) {
	where, args := aiRequestConditions(filter)

	payloadColumns := "NULL::text, NULL::jsonb, NULL::text"
	if withPayloads {
		payloadColumns = "prompt, response_payload, raw_response"
	}
	args = append(args, window.Limit, window.Offset)
	query := fmt.Sprintf(
		`SELECT id, user_id, receipt_id, request_type, provider, model, %s,
		        success, error_message, duration_ms, created_at,
		        COUNT(*) OVER () AS total
		 FROM ai_requests%s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`,
		payloadColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	total := 0
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AIRequestRecord, error) {
		var record AIRequestRecord
		err := row.Scan(
			&record.ID,
			&record.UserID,
			&record.ReceiptID,
			&record.RequestType,
			&record.Provider,
			&record.Model,
			&record.Prompt,
			&record.ResponsePayload,
			&record.RawResponse,
			&record.Success,
			&record.ErrorMessage,
			&record.DurationMS,
			&record.CreatedAt,
			&total,
		)
		return record, err
	})
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Usage собирает общие счетчики и активность по дням начиная с since.
func (r *AdminRepository) Usage(ctx context.Context, since time.Time) (Usage, error) {
	var usage Usage

	if err := r.db.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM users),
		        (SELECT COUNT(*) FROM users WHERE data_filled),
		        (SELECT COUNT(*) FROM receipts),
		        (SELECT COUNT(*) FROM receipt_items),
		        (SELECT COUNT(*) FROM receipt_items WHERE deductibility_id IS NULL),
		        (SELECT COUNT(*) FROM ai_requests),
		        (SELECT COUNT(*) FROM ai_requests WHERE NOT success)`,
	).Scan(
		&usage.Users,
		&usage.ProfilesFilled,
		&usage.Receipts,
		&usage.ReceiptItems,
		&usage.UnclassifiedItems,
		&usage.AIRequests,
		&usage.AIFailures,
	); err != nil {
		return usage, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT d.name, COUNT(i.id)
		 FROM deductibility_types d
		 LEFT JOIN receipt_items i ON i.deductibility_id = d.id
		 GROUP BY d.id, d.name, d.sort_order
		 ORDER BY d.sort_order, d.id`,
	)
	if err != nil {
		return usage, err
	}
	usage.ByDeductibility, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeductibilityUsage, error) {
		var entry DeductibilityUsage
		err := row.Scan(&entry.Name, &entry.Items)
		return entry, err
	})
	if err != nil {
		return usage, err
	}

	rows, err = r.db.Query(ctx,
		`SELECT day::date,
		        (SELECT COUNT(*) FROM receipts WHERE created_at >= day AND created_at < day + INTERVAL '1 day'),
		        (SELECT COUNT(*) FROM ai_requests WHERE created_at >= day AND created_at < day + INTERVAL '1 day')
		 FROM generate_series($1::date, CURRENT_DATE, INTERVAL '1 day') AS day
		 ORDER BY day`,
		since,
	)
	if err != nil {
		return usage, err
	}
	usage.Daily, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyActivity, error) {
		var day DailyActivity
		err := row.Scan(&day.Day, &day.Receipts, &day.AIRequests)
		return day, err
	})
	if err != nil {
		return usage, err
	}

	return usage, nil
}

func aiRequestConditions(filter AIRequestFilter) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}
	if filter.Provider != nil {
		add("provider = $%d", *filter.Provider)
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
