package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"example.com/receipt-tax-tracker/backend/internal/ai"
	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/repository"
	"example.com/receipt-tax-tracker/backend/internal/summary"
)

const recentReceiptsLimit = 5

// SummaryService считает агрегаты для дашборда.
type SummaryService interface {
	DeductibilitySummary(ctx context.Context, userID uuid.UUID) (summary.DeductibilitySummary, error)
	MonthlySpending(ctx context.Context, userID uuid.UUID, now time.Time) (summary.MonthlySpending, error)
}

type RecentReceipts interface {
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]repository.ReceiptListEntry, error)
}

type DashboardHandler struct {
	Summary     SummaryService
	Receipts    RecentReceipts
	Suggestions ai.SuggestionProvider
	Clock       func() time.Time
	Logger      *slog.Logger
}

// NewDashboardHandler создает обработчик дашборда.
func NewDashboardHandler(service SummaryService, receipts RecentReceipts, suggestions ai.SuggestionProvider, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{
		Summary:     service,
		Receipts:    receipts,
		Suggestions: suggestions,
		Clock:       time.Now,
		Logger:      logger,
	}
}

type DeductibilitySummaryResponse struct {
	Summary      []summary.Entry `json:"summary"`
	Total        decimal.Decimal `json:"total"`
	Unclassified summary.Bucket  `json:"unclassified"`
}

type TaxSuggestionsResponse struct {
	Suggestions []ai.Suggestion `json:"suggestions"`
}

type DashboardResponse struct {
	DeductibilitySummary []summary.Entry         `json:"deductibility_summary"`
	TotalAmount          decimal.Decimal         `json:"total_amount"`
	Unclassified         summary.Bucket          `json:"unclassified"`
	RecentReceipts       []ReceiptResponse       `json:"recent_receipts"`
	MonthlySpending      summary.MonthlySpending `json:"monthly_spending"`
	TaxSuggestions       []ai.Suggestion         `json:"tax_suggestions"`
}

// Overview собирает все блоки дашборда параллельно.
func (h *DashboardHandler) Overview(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var (
		deductions  summary.DeductibilitySummary
		monthly     summary.MonthlySpending
		recent      []repository.ReceiptListEntry
		suggestions []ai.Suggestion
	)

	now := h.now()
	group, ctx := errgroup.WithContext(c.Request().Context())
	group.Go(func() error {
		var err error
		deductions, err = h.Summary.DeductibilitySummary(ctx, userID)
		return err
	})
	group.Go(func() error {
		var err error
		monthly, err = h.Summary.MonthlySpending(ctx, userID, now)
		return err
	})
	group.Go(func() error {
		var err error
		recent, err = h.Receipts.Recent(ctx, userID, recentReceiptsLimit)
		return err
	})
	if err := group.Wait(); err != nil {
		logFailure(c, h.Logger, "dashboard", err)
		return failure(c, "Failed to load dashboard")
	}

	suggestions, err := h.Suggestions.TaxSuggestions(c.Request().Context())
	if err != nil {
		logFailure(c, h.Logger, "dashboard suggestions", err)
		return failure(c, "Failed to load dashboard")
	}

	receipts := make([]ReceiptResponse, 0, len(recent))
	for _, entry := range recent {
		receipts = append(receipts, toReceiptResponse(entry))
	}

	return c.JSON(http.StatusOK, DashboardResponse{
		DeductibilitySummary: deductions.Entries,
		TotalAmount:          deductions.Total,
		Unclassified:         deductions.Unclassified,
		RecentReceipts:       receipts,
		MonthlySpending:      monthly,
		TaxSuggestions:       suggestions,
	})
}

// DeductibilitySummary возвращает разбивку позиций по типам вычета.
func (h *DashboardHandler) DeductibilitySummary(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := h.Summary.DeductibilitySummary(c.Request().Context(), userID)
	if err != nil {
		logFailure(c, h.Logger, "deductibility summary", err)
		return failure(c, "Failed to get deductibility summary")
	}

	return c.JSON(http.StatusOK, DeductibilitySummaryResponse{
		Summary:      result.Entries,
		Total:        result.Total,
		Unclassified: result.Unclassified,
	})
}

// MonthlySpending возвращает траты за последние 12 месяцев.
func (h *DashboardHandler) MonthlySpending(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := h.Summary.MonthlySpending(c.Request().Context(), userID, h.now())
	if err != nil {
		logFailure(c, h.Logger, "monthly spending", err)
		return failure(c, "Failed to get monthly spending")
	}

	return c.JSON(http.StatusOK, result)
}

// TaxSuggestions возвращает советы по вычетам.
func (h *DashboardHandler) TaxSuggestions(c echo.Context) error {
	if _, ok := auth.UserIDFromContext(c); !ok {
		return unauthorized(c)
	}

	suggestions, err := h.Suggestions.TaxSuggestions(c.Request().Context())
	if err != nil {
		logFailure(c, h.Logger, "tax suggestions", err)
		return failure(c, "Failed to get tax suggestions")
	}

	return c.JSON(http.StatusOK, TaxSuggestionsResponse{Suggestions: suggestions})
}

func (h *DashboardHandler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock()
}
