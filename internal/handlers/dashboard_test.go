package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/ai"
	"example.com/receipt-tax-tracker/backend/internal/summary"
)

type failingSuggestions struct{}

func (failingSuggestions) TaxSuggestions(ctx context.Context) ([]ai.Suggestion, error) {
	return nil, errors.New("provider down")
}

func fixedClock() time.Time {
	return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
}

func newTestDashboard(service *fakeSummary, suggestions ai.SuggestionProvider) *DashboardHandler {
	h := NewDashboardHandler(service, newFakeReceiptStore(), suggestions, nil)
	h.Clock = fixedClock
	return h
}

// TestDashboardDeductibilitySummary проверяет форму ответа разбивки по вычетам.
func TestDashboardDeductibilitySummary(t *testing.T) {
	service := &fakeSummary{deductions: summary.DeductibilitySummary{
		Entries: []summary.Entry{
			{DeductibilityID: 1, Name: "Fully Deductible", TotalAmount: decimal.RequireFromString("13.2"), ItemCount: 1, Percentage: decimal.NewFromInt(100)},
			{DeductibilityID: 2, Name: "Partially Deductible", TotalAmount: decimal.Zero, Percentage: decimal.Zero},
			{DeductibilityID: 3, Name: "Non-Deductible", TotalAmount: decimal.Zero, Percentage: decimal.Zero},
		},
		Total: decimal.RequireFromString("13.2"),
	}}
	h := newTestDashboard(service, ai.StaticSuggestions{})

	c, rec := newTestContext(http.MethodGet, "/dashboard/deductibility-summary", nil, "", uuid.New())
	if err := h.DeductibilitySummary(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body DeductibilitySummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Summary) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(body.Summary))
	}
	if !body.Total.Equal(decimal.RequireFromString("13.2")) {
		t.Fatalf("expected total 13.2, got %s", body.Total)
	}
	if body.Summary[0].Name != "Fully Deductible" || !body.Summary[0].Percentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected first entry %+v", body.Summary[0])
	}
}

// TestDashboardMonthlySpendingUsesClock проверяет, что серия строится от часов обработчика.
func TestDashboardMonthlySpendingUsesClock(t *testing.T) {
	service := &fakeSummary{monthly: summary.MonthlySpending{Labels: []string{"Jun 2025"}, Data: []decimal.Decimal{decimal.NewFromInt(5)}}}
	h := newTestDashboard(service, ai.StaticSuggestions{})

	c, rec := newTestContext(http.MethodGet, "/dashboard/monthly-spending", nil, "", uuid.New())
	if err := h.MonthlySpending(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !service.gotNow.Equal(fixedClock()) {
		t.Fatalf("expected %v, got %v", fixedClock(), service.gotNow)
	}

	var body summary.MonthlySpending
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Labels) != 1 || body.Labels[0] != "Jun 2025" {
		t.Fatalf("unexpected labels %v", body.Labels)
	}
}

// TestDashboardFailureHidesDetails проверяет ответ 500 без текста внутренней ошибки.
func TestDashboardFailureHidesDetails(t *testing.T) {
	service := &fakeSummary{err: errors.New("connection reset by peer")}
	h := newTestDashboard(service, ai.StaticSuggestions{})

	c, rec := newTestContext(http.MethodGet, "/dashboard/deductibility-summary", nil, "", uuid.New())
	if err := h.DeductibilitySummary(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] == "" || body["message"] == "" {
		t.Fatalf("expected error and message, got %v", body)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatal("expected internal error text to stay in logs")
	}
}

// TestDashboardTaxSuggestions проверяет выдачу трех советов.
func TestDashboardTaxSuggestions(t *testing.T) {
	h := newTestDashboard(&fakeSummary{}, ai.StaticSuggestions{})

	c, rec := newTestContext(http.MethodGet, "/dashboard/tax-suggestions", nil, "", uuid.New())
	if err := h.TaxSuggestions(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var body TaxSuggestionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(body.Suggestions))
	}
}

// TestDashboardTaxSuggestionsFailure проверяет 500 при ошибке источника советов.
func TestDashboardTaxSuggestionsFailure(t *testing.T) {
	h := newTestDashboard(&fakeSummary{}, failingSuggestions{})

	c, rec := newTestContext(http.MethodGet, "/dashboard/tax-suggestions", nil, "", uuid.New())
	if err := h.TaxSuggestions(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

// TestDashboardOverview проверяет сборку всех блоков и последние чеки пользователя.
func TestDashboardOverview(t *testing.T) {
	userID := uuid.New()
	service := &fakeSummary{
		deductions: summary.DeductibilitySummary{Total: decimal.NewFromInt(10)},
		monthly:    summary.MonthlySpending{Labels: []string{}, Data: []decimal.Decimal{}},
	}
	receipts := newFakeReceiptStore()
	receipts.add(userID)
	receipts.add(uuid.New())

	h := NewDashboardHandler(service, receipts, ai.StaticSuggestions{}, nil)
	h.Clock = fixedClock

	c, rec := newTestContext(http.MethodGet, "/dashboard", nil, "", userID)
	if err := h.Overview(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body DashboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.RecentReceipts) != 1 {
		t.Fatalf("expected 1 recent receipt, got %d", len(body.RecentReceipts))
	}
	if len(body.TaxSuggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(body.TaxSuggestions))
	}
	if !body.TotalAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected total 10, got %s", body.TotalAmount)
	}
	if !service.gotNow.Equal(fixedClock()) {
		t.Fatalf("expected %v, got %v", fixedClock(), service.gotNow)
	}
}
