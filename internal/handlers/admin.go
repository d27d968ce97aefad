package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/repository"
)

const (
	adminDefaultLimit = 50
	adminMaxLimit     = 200
	usageDefaultDays  = 7
	usageMaxDays      = 30
)

// AdminStore отдает сводки для админки.
type AdminStore interface {
	ListUsers(ctx context.Context, window repository.Window) ([]repository.AdminUser, int, error)
	ListAIRequests(ctx context.Context, filter repository.AIRequestFilter, window repository.Window, withPayloads bool) ([]repository.AIRequestRecord, int, error)
	Usage(ctx context.Context, since time.Time) (repository.Usage, error)
}

type AdminHandler struct {
	Store  AdminStore
	Clock  func() time.Time
	Logger *slog.Logger
}

// NewAdminHandler создает обработчик админских эндпоинтов.
func NewAdminHandler(store AdminStore, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{Store: store, Clock: time.Now, Logger: logger}
}

type AdminUserResponse struct {
	ID              uuid.UUID       `json:"id"`
	Email           string          `json:"email"`
	Name            *string         `json:"name,omitempty"`
	DataFilled      bool            `json:"data_filled"`
	ReceiptCount    int             `json:"receipt_count"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	LastReceiptDate *string         `json:"last_receipt_date"`
	CreatedAt       string          `json:"created_at"`
}

type AdminAIRequestResponse struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	ReceiptID       *uuid.UUID      `json:"receipt_id"`
	RequestType     string          `json:"request_type"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	Success         bool            `json:"success"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	DurationMS      int             `json:"duration_ms"`
	CreatedAt       string          `json:"created_at"`
	Prompt          *string         `json:"prompt,omitempty"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	RawResponse     *string         `json:"raw_response,omitempty"`
}

type AdminListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

type AdminUsageDay struct {
	Date       string `json:"date"`
	Receipts   int    `json:"receipts"`
	AIRequests int    `json:"ai_requests"`
}

type AdminUsageResponse struct {
	Users             int             `json:"users"`
	ProfilesFilled    int             `json:"profiles_filled"`
	Receipts          int             `json:"receipts"`
	ReceiptItems      int             `json:"receipt_items"`
	UnclassifiedItems int             `json:"unclassified_items"`
	ItemsByType       map[string]int  `json:"items_by_deductibility"`
	AIRequests        int             `json:"ai_requests"`
	AIFailures        int             `json:"ai_failures"`
	Daily             []AdminUsageDay `json:"daily"`
}

// ListUsers возвращает пользователей со сводкой по чекам.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	window, err := parseWindow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	users, total, err := h.Store.ListUsers(c.Request().Context(), window)
	if err != nil {
		return internalError(c, h.Logger, "admin list users", err)
	}

	data := make([]AdminUserResponse, 0, len(users))
	for _, user := range users {
		item := AdminUserResponse{
			ID:           user.ID,
			Email:        user.Email,
			Name:         user.Name,
			DataFilled:   user.DataFilled,
			ReceiptCount: user.ReceiptCount,
			TotalSpent:   user.TotalSpent,
			CreatedAt:    user.CreatedAt.Format(timeLayout),
		}
		if user.LastReceiptDate != nil {
			last := user.LastReceiptDate.Format(dateLayout)
			item.LastReceiptDate = &last
		}
		data = append(data, item)
	}

	return c.JSON(http.StatusOK, AdminListResponse[AdminUserResponse]{Data: data, Total: total})
}

// ListAIRequests возвращает журнал распознавания чеков.
func (h *AdminHandler) ListAIRequests(c echo.Context) error {
	window, err := parseWindow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	filter, err := parseAIRequestFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	withPayloads := false
	if raw := strings.TrimSpace(c.QueryParam("include_payloads")); raw != "" {
		if withPayloads, err = strconv.ParseBool(raw); err != nil {
			return badRequest(c, "invalid include_payloads")
		}
	}

	records, total, err := h.Store.ListAIRequests(c.Request().Context(), filter, window, withPayloads)
	if err != nil {
		return internalError(c, h.Logger, "admin list ai requests", err)
	}

	data := make([]AdminAIRequestResponse, 0, len(records))
	for _, record := range records {
		item := AdminAIRequestResponse{
			ID:           record.ID,
			UserID:       record.UserID,
			ReceiptID:    record.ReceiptID,
			RequestType:  record.RequestType,
			Provider:     record.Provider,
			Model:        record.Model,
			Success:      record.Success,
			ErrorMessage: record.ErrorMessage,
			DurationMS:   record.DurationMS,
			CreatedAt:    record.CreatedAt.Format(timeLayout),
		}
		if withPayloads {
			item.Prompt = record.Prompt
			item.RawResponse = record.RawResponse
			if len(record.ResponsePayload) > 0 {
				item.ResponsePayload = json.RawMessage(record.ResponsePayload)
			}
		}
		data = append(data, item)
	}

	return c.JSON(http.StatusOK, AdminListResponse[AdminAIRequestResponse]{Data: data, Total: total})
}

// Usage возвращает общие счетчики и активность за последние days дней (до 30).
func (h *AdminHandler) Usage(c echo.Context) error {
	days := usageDefaultDays
	if raw := strings.TrimSpace(c.QueryParam("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return badRequest(c, "invalid days")
		}
		days = min(parsed, usageMaxDays)
	}

	now := h.Clock().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day()-days+1, 0, 0, 0, 0, time.UTC)

	usage, err := h.Store.Usage(c.Request().Context(), since)
	if err != nil {
		return internalError(c, h.Logger, "admin usage", err)
	}

	byType := make(map[string]int, len(usage.ByDeductibility))
	for _, entry := range usage.ByDeductibility {
		byType[entry.Name] = entry.Items
	}
	daily := make([]AdminUsageDay, 0, len(usage.Daily))
	for _, day := range usage.Daily {
		daily = append(daily, AdminUsageDay{
			Date:       day.Day.Format(dateLayout),
			Receipts:   day.Receipts,
			AIRequests: day.AIRequests,
		})
	}

	return c.JSON(http.StatusOK, AdminUsageResponse{
		Users:             usage.Users,
		ProfilesFilled:    usage.ProfilesFilled,
		Receipts:          usage.Receipts,
		ReceiptItems:      usage.ReceiptItems,
		UnclassifiedItems: usage.UnclassifiedItems,
		ItemsByType:       byType,
		AIRequests:        usage.AIRequests,
		AIFailures:        usage.AIFailures,
		Daily:             daily,
	})
}

// AdminMiddleware пропускает только пользователей из ADMIN_EMAILS.
func AdminMiddleware(users UserLookup, emails []string, logger *slog.Logger) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			allowed[email] = struct{}{}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := auth.UserIDFromContext(c)
			if !ok {
				return unauthorized(c)
			}
			if len(allowed) == 0 {
				return forbidden(c)
			}

			user, err := users.GetByID(c.Request().Context(), userID)
			if errors.Is(err, repository.ErrNotFound) {
				return forbidden(c)
			}
			if err != nil {
				return internalError(c, logger, "load admin user", err)
			}

			if _, ok := allowed[strings.ToLower(user.Email)]; !ok {
				return forbidden(c)
			}
			return next(c)
		}
	}
}

func parseWindow(c echo.Context) (repository.Window, error) {
	window := repository.Window{Limit: adminDefaultLimit}

	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return window, errors.New("invalid limit")
		}
		window.Limit = min(limit, adminMaxLimit)
	}
	if raw := strings.TrimSpace(c.QueryParam("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return window, errors.New("invalid offset")
		}
		window.Offset = offset
	}

	return window, nil
}

func parseAIRequestFilter(c echo.Context) (repository.AIRequestFilter, error) {
	var filter repository.AIRequestFilter

	if raw := strings.TrimSpace(c.QueryParam("user_id")); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("invalid user_id")
		}
		filter.UserID = &userID
	}
	if raw := strings.TrimSpace(c.QueryParam("success")); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("invalid success")
		}
		filter.Success = &success
	}
	if raw := strings.ToLower(strings.TrimSpace(c.QueryParam("provider"))); raw != "" {
		filter.Provider = &raw
	}
	if raw := strings.TrimSpace(c.QueryParam("since")); raw != "" {
		since, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, errors.New("invalid since")
		}
		filter.Since = &since
	}

	return filter, nil
}
