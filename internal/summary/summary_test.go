package summary

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

func canonicalTypes() []models.DeductibilityType {
	return []models.DeductibilityType{
		{ID: 3, Name: "Non-Deductible", SortOrder: 3},
		{ID: 1, Name: "Fully Deductible", SortOrder: 1},
		{ID: 2, Name: "Partially Deductible", SortOrder: 2},
	}
}

func id(v int16) *int16 {
	return &v
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", value, err)
	}
	return d
}

// TestDeductibilitySummarySingleType проверяет долю 100% для единственного типа.
func TestDeductibilitySummarySingleType(t *testing.T) {
	rows := []DeductibilityRow{{DeductibilityID: id(1), Total: dec(t, "13.20"), Count: 1}}

	result := BuildDeductibilitySummary(canonicalTypes(), rows)

	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Entries))
	}

	full := result.Entries[0]
	if full.Name != "Fully Deductible" {
		t.Fatalf("expected Fully Deductible first, got %s", full.Name)
	}
	if !full.TotalAmount.Equal(dec(t, "13.20")) || full.ItemCount != 1 {
		t.Fatalf("expected 13.20 / 1 item, got %s / %d", full.TotalAmount, full.ItemCount)
	}
	if !full.Percentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100%%, got %s", full.Percentage)
	}

	for _, entry := range result.Entries[1:] {
		if !entry.TotalAmount.IsZero() || entry.ItemCount != 0 || !entry.Percentage.IsZero() {
			t.Fatalf("expected zero entry for %s, got %+v", entry.Name, entry)
		}
	}

	if !result.Total.Equal(dec(t, "13.20")) {
		t.Fatalf("expected total 13.20, got %s", result.Total)
	}
}

// TestDeductibilitySummarySplit проверяет разбиение 10 и 30 на 25% и 75%.
func TestDeductibilitySummarySplit(t *testing.T) {
	rows := []DeductibilityRow{
		{DeductibilityID: id(3), Total: dec(t, "30.00"), Count: 1},
		{DeductibilityID: id(1), Total: dec(t, "10.00"), Count: 1},
	}

	result := BuildDeductibilitySummary(canonicalTypes(), rows)

	if !result.Entries[0].Percentage.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25%%, got %s", result.Entries[0].Percentage)
	}
	if !result.Entries[2].Percentage.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("expected 75%%, got %s", result.Entries[2].Percentage)
	}
	if !result.Entries[1].Percentage.IsZero() {
		t.Fatalf("expected 0%% for partial, got %s", result.Entries[1].Percentage)
	}
	if !result.Total.Equal(dec(t, "40.00")) {
		t.Fatalf("expected total 40, got %s", result.Total)
	}
}

// TestDeductibilitySummaryEmpty проверяет нулевые записи без данных.
func TestDeductibilitySummaryEmpty(t *testing.T) {
	result := BuildDeductibilitySummary(canonicalTypes(), nil)

	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Entries))
	}
	for _, entry := range result.Entries {
		if !entry.TotalAmount.IsZero() || entry.ItemCount != 0 || !entry.Percentage.IsZero() {
			t.Fatalf("expected zero entry, got %+v", entry)
		}
	}
	if !result.Total.IsZero() {
		t.Fatalf("expected zero total, got %s", result.Total)
	}
}

// TestDeductibilitySummaryUnclassified проверяет, что позиции без типа не входят в базу процента.
func TestDeductibilitySummaryUnclassified(t *testing.T) {
	rows := []DeductibilityRow{
		{DeductibilityID: id(2), Total: dec(t, "50.00"), Count: 2},
		{DeductibilityID: nil, Total: dec(t, "20.00"), Count: 1},
		{DeductibilityID: id(9), Total: dec(t, "5.00"), Count: 1},
	}

	result := BuildDeductibilitySummary(canonicalTypes(), rows)

	if !result.Total.Equal(dec(t, "50.00")) {
		t.Fatalf("expected classified total 50, got %s", result.Total)
	}
	if !result.Unclassified.TotalAmount.Equal(dec(t, "25.00")) || result.Unclassified.ItemCount != 2 {
		t.Fatalf("expected unclassified 25 / 2, got %s / %d", result.Unclassified.TotalAmount, result.Unclassified.ItemCount)
	}
	if !result.Entries[1].Percentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected partial 100%%, got %s", result.Entries[1].Percentage)
	}

	sum := decimal.Zero
	for _, entry := range result.Entries {
		sum = sum.Add(entry.TotalAmount)
	}
	if !sum.Equal(result.Total) {
		t.Fatalf("expected entries to sum to total %s, got %s", result.Total, sum)
	}
}

// TestPercentageRounding проверяет округление до сотых.
func TestPercentageRounding(t *testing.T) {
	got := Percentage(decimal.NewFromInt(1), decimal.NewFromInt(3))
	if !got.Equal(dec(t, "33.33")) {
		t.Fatalf("expected 33.33, got %s", got)
	}

	got = Percentage(decimal.NewFromInt(2), decimal.NewFromInt(3))
	if !got.Equal(dec(t, "66.67")) {
		t.Fatalf("expected 66.67, got %s", got)
	}

	if got := Percentage(decimal.NewFromInt(5), decimal.Zero); !got.IsZero() {
		t.Fatalf("expected 0 for zero total, got %s", got)
	}
}

// TestMonthlySpendingLabels проверяет подписи двенадцати месяцев.
func TestMonthlySpendingLabels(t *testing.T) {
	now := time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

	series := BuildMonthlySpending(now, nil)

	if len(series.Labels) != 12 || len(series.Data) != 12 {
		t.Fatalf("expected 12 buckets, got %d labels / %d data", len(series.Labels), len(series.Data))
	}
	if series.Labels[0] != "Jul 2024" {
		t.Fatalf("expected Jul 2024 first, got %s", series.Labels[0])
	}
	if series.Labels[11] != "Jun 2025" {
		t.Fatalf("expected Jun 2025 last, got %s", series.Labels[11])
	}
	for i, value := range series.Data {
		if !value.IsZero() {
			t.Fatalf("expected zero at %d, got %s", i, value)
		}
	}
}

// TestMonthlySpendingBuckets проверяет раскладку сумм по месяцам.
func TestMonthlySpendingBuckets(t *testing.T) {
	now := time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
	totals := []MonthTotal{
		{Month: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), Total: dec(t, "80.50")},
		{Month: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), Total: dec(t, "12.345")},
		{Month: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), Total: dec(t, "999")},
	}

	series := BuildMonthlySpending(now, totals)

	if !series.Data[11].Equal(dec(t, "80.50")) {
		t.Fatalf("expected 80.50 for current month, got %s", series.Data[11])
	}
	if !series.Data[0].Equal(dec(t, "12.35")) {
		t.Fatalf("expected 12.35 for oldest month, got %s", series.Data[0])
	}

	sum := decimal.Zero
	for _, value := range series.Data {
		sum = sum.Add(value)
	}
	if !sum.Equal(dec(t, "92.85")) {
		t.Fatalf("expected out-of-window month ignored, got sum %s", sum)
	}
}

// TestMonthlySpendingYearBoundary проверяет переход через год и конец месяца.
func TestMonthlySpendingYearBoundary(t *testing.T) {
	now := time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)

	series := BuildMonthlySpending(now, nil)

	want := []string{
		"Apr 2024", "May 2024", "Jun 2024", "Jul 2024", "Aug 2024", "Sep 2024",
		"Oct 2024", "Nov 2024", "Dec 2024", "Jan 2025", "Feb 2025", "Mar 2025",
	}
	for i, label := range want {
		if series.Labels[i] != label {
			t.Fatalf("expected %s at %d, got %s", label, i, series.Labels[i])
		}
	}
}

// TestSeriesWindow проверяет границы выборки.
func TestSeriesWindow(t *testing.T) {
	now := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)

	from, to := SeriesWindow(now)

	if !from.Equal(time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2023-03-01, got %s", from)
	}
	if !to.Equal(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2024-02-29, got %s", to)
	}
}
