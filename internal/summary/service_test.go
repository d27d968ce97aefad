package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

type fakeTypes struct {
	types []models.DeductibilityType
	err   error
}

func (f fakeTypes) DeductibilityTypes(ctx context.Context) ([]models.DeductibilityType, error) {
	return f.types, f.err
}

type fakeTotals struct {
	rows     []DeductibilityRow
	months   []MonthTotal
	from, to time.Time
}

func (f *fakeTotals) DeductibilityTotals(ctx context.Context, userID uuid.UUID) ([]DeductibilityRow, error) {
	return f.rows, nil
}

func (f *fakeTotals) MonthlyTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]MonthTotal, error) {
	f.from, f.to = from, to
	return f.months, nil
}

// TestServiceMonthlySpendingWindow проверяет, что сервис запрашивает окно от now.
func TestServiceMonthlySpendingWindow(t *testing.T) {
	totals := &fakeTotals{}
	service := NewService(fakeTypes{types: canonicalTypes()}, totals)
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	series, err := service.MonthlySpending(context.Background(), uuid.New(), now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !totals.from.Equal(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected window start 2024-07-01, got %s", totals.from)
	}
	if !totals.to.Equal(time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected window end 2025-06-30, got %s", totals.to)
	}
	if len(series.Labels) != MonthsInSeries {
		t.Fatalf("expected %d labels, got %d", MonthsInSeries, len(series.Labels))
	}
}

// TestServiceDeductibilitySummary проверяет сборку сводки из источников.
func TestServiceDeductibilitySummary(t *testing.T) {
	totals := &fakeTotals{rows: []DeductibilityRow{{DeductibilityID: id(1), Total: decimal.NewFromInt(10), Count: 2}}}
	service := NewService(fakeTypes{types: canonicalTypes()}, totals)

	result, err := service.DeductibilitySummary(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Entries[0].ItemCount != 2 {
		t.Fatalf("expected 2 items, got %d", result.Entries[0].ItemCount)
	}
}

// TestServiceTypeError проверяет проброс ошибки справочника.
func TestServiceTypeError(t *testing.T) {
	boom := errors.New("boom")
	service := NewService(fakeTypes{err: boom}, &fakeTotals{})

	_, err := service.DeductibilitySummary(context.Background(), uuid.New())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
