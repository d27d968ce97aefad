package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/summary"
)

type StatsRepository struct {
	db *pgxpool.Pool
}

// NewStatsRepository создает репозиторий статистики.
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// DeductibilityTotals возвращает суммы и количество позиций пользователя по типам вычета.
func (r *StatsRepository) DeductibilityTotals(ctx context.Context, userID uuid.UUID) ([]summary.DeductibilityRow, error) {
	rows, err := r.db.Query(ctx,
		`SELECT i.deductibility_id,
		        COALESCE(SUM(i.total_price), 0) AS total,
		        COUNT(*) AS item_count
		 FROM receipt_items i
		 JOIN receipts r ON r.id = i.receipt_id
		 WHERE r.user_id = $1
		 GROUP BY i.deductibility_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]summary.DeductibilityRow, 0)
	for rows.Next() {
		var row summary.DeductibilityRow
		if err := rows.Scan(&row.DeductibilityID, &row.Total, &row.Count); err != nil {
			return nil, err
		}
		totals = append(totals, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return totals, nil
}

// MonthlyTotals возвращает суммы чеков по календарным месяцам в границах [from, to].
func (r *StatsRepository) MonthlyTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]summary.MonthTotal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT date_trunc('month', receipt_date)::date AS month,
		        COALESCE(SUM(total_amount), 0) AS total
		 FROM receipts
		 WHERE user_id = $1 AND receipt_date BETWEEN $2::date AND $3::date
		 GROUP BY month
		 ORDER BY month`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]summary.MonthTotal, 0)
	for rows.Next() {
		var month time.Time
		var total decimal.Decimal
		if err := rows.Scan(&month, &total); err != nil {
			return nil, err
		}
		totals = append(totals, summary.MonthTotal{Month: month, Total: total})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return totals, nil
}
