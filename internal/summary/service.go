package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

// TypeSource отдает справочник типов вычета.
type TypeSource interface {
	DeductibilityTypes(ctx context.Context) ([]models.DeductibilityType, error)
}

// TotalsSource отдает сгруппированные суммы пользователя.
type TotalsSource interface {
	DeductibilityTotals(ctx context.Context, userID uuid.UUID) ([]DeductibilityRow, error)
	MonthlyTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]MonthTotal, error)
}

type Service struct {
	types  TypeSource
	totals TotalsSource
}

// NewService создает сервис агрегатов дашборда.
func NewService(types TypeSource, totals TotalsSource) *Service {
	return &Service{types: types, totals: totals}
}

// DeductibilitySummary возвращает разбивку позиций пользователя по типам вычета.
func (s *Service) DeductibilitySummary(ctx context.Context, userID uuid.UUID) (DeductibilitySummary, error) {
	types, err := s.types.DeductibilityTypes(ctx)
	if err != nil {
		return DeductibilitySummary{}, fmt.Errorf("load deductibility types: %w", err)
	}

	rows, err := s.totals.DeductibilityTotals(ctx, userID)
	if err != nil {
		return DeductibilitySummary{}, fmt.Errorf("load deductibility totals: %w", err)
	}

	return BuildDeductibilitySummary(types, rows), nil
}

// MonthlySpending возвращает траты за двенадцать месяцев, заканчивая месяцем now.
func (s *Service) MonthlySpending(ctx context.Context, userID uuid.UUID, now time.Time) (MonthlySpending, error) {
	from, to := SeriesWindow(now)

	totals, err := s.totals.MonthlyTotals(ctx, userID, from, to)
	if err != nil {
		return MonthlySpending{}, fmt.Errorf("load monthly totals: %w", err)
	}

	return BuildMonthlySpending(now, totals), nil
}
