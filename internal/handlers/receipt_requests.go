package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/repository"
)

const dateLayout = "2006-01-02"

var receiptDateLayouts = []string{dateLayout, "02/01/2006", "02/01/06", time.RFC3339}

var errEmptyPayload = errors.New("empty payload")

var (
	minQuantity   = decimal.RequireFromString("0.01")
	maxPercentage = decimal.NewFromInt(100)
)

type ReceiptItemRequest struct {
	ID                  *uuid.UUID       `json:"id"`
	Description         string           `json:"description" validate:"required,max=255"`
	Quantity            *decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice           *decimal.Decimal `json:"unit_price" validate:"required"`
	TotalPrice          *decimal.Decimal `json:"total_price" validate:"required"`
	CategoryID          *int64           `json:"category_id"`
	DeductibilityID     *int16           `json:"deductibility_id"`
	DeductionPercentage *decimal.Decimal `json:"deduction_percentage"`
	Notes               *string          `json:"notes"`
}

type ReceiptRequest struct {
	VendorID         *int64               `json:"vendor_id"`
	NewVendorName    *string              `json:"new_vendor_name" validate:"omitempty,max=255"`
	NewVendorAddress *string              `json:"new_vendor_address" validate:"omitempty,max=500"`
	ReceiptDate      string               `json:"receipt_date" validate:"required"`
	TotalAmount      *decimal.Decimal     `json:"total_amount" validate:"required"`
	Currency         *string              `json:"currency" validate:"omitempty,len=3"`
	PaymentMethodID  *int64               `json:"payment_method_id"`
	ReceiptNumber    *string              `json:"receipt_number" validate:"omitempty,max=100"`
	Notes            *string              `json:"notes"`
	Items            []ReceiptItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ExtractedReceiptRequest повторяет формат результата распознавания.
type ExtractedReceiptRequest struct {
	VendorName    string                 `json:"vendor_name" validate:"required,max=255"`
	TotalAmount   *decimal.Decimal       `json:"total_amount" validate:"required"`
	Date          string                 `json:"date" validate:"required"`
	Currency      *string                `json:"currency" validate:"omitempty,len=3"`
	Items         []ExtractedItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod *string                `json:"payment_method" validate:"omitempty,max=100"`
	VendorAddress *string                `json:"vendor_address" validate:"omitempty,max=500"`
	Notes         *string                `json:"notes"`
	IsDeductible  bool                   `json:"is_deductible"`
}

type ExtractedItemRequest struct {
	Description     string           `json:"description" validate:"required,max=255"`
	Quantity        *decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice       *decimal.Decimal `json:"unit_price" validate:"required"`
	TotalPrice      *decimal.Decimal `json:"total_price" validate:"required"`
	ExpenseCategory *string          `json:"expense_category" validate:"omitempty,max=100"`
}

// decodeReceiptRequest разбирает и проверяет тело запроса на создание или изменение чека.
// Ошибки валидации возвращаются в FieldErrors, прочие как error.
func decodeReceiptRequest(c echo.Context, raw []byte) (repository.ReceiptInput, FieldErrors, error) {
	var req ReceiptRequest
	errs := FieldErrors{}
	if err := decodePayload(raw, &req); err != nil {
		errs.Add("payload", "The payload must be a valid JSON object.")
		return repository.ReceiptInput{}, errs, nil
	}
	for i := range req.Items {
		req.Items[i].Description = strings.TrimSpace(req.Items[i].Description)
	}

	if err := errs.Merge(c.Validate(&req)); err != nil {
		return repository.ReceiptInput{}, nil, err
	}

	date, ok := parseReceiptDate(req.ReceiptDate)
	if req.ReceiptDate != "" && !ok {
		errs.Add("receipt_date", "The receipt_date field must be a valid date.")
	}
	errs.DecimalRange("total_amount", req.TotalAmount, decimal.Zero, nil)
	for i, item := range req.Items {
		checkItemAmounts(errs, i, item.Quantity, item.UnitPrice, item.TotalPrice)
		errs.DecimalRange(itemField(i, "deduction_percentage"), item.DeductionPercentage, decimal.Zero, &maxPercentage)
	}
	if len(errs) > 0 {
		return repository.ReceiptInput{}, errs, nil
	}

	input := repository.ReceiptInput{
		VendorID:        req.VendorID,
		ReceiptDate:     date,
		TotalAmount:     *req.TotalAmount,
		Currency:        normalizeCurrency(req.Currency),
		PaymentMethodID: req.PaymentMethodID,
		ReceiptNumber:   trimmedOrNil(req.ReceiptNumber),
		Notes:           req.Notes,
		Items:           make([]repository.ReceiptItemInput, 0, len(req.Items)),
	}
	if input.VendorID == nil {
		if name := trimmedOrNil(req.NewVendorName); name != nil {
			input.NewVendor = &repository.VendorInput{Name: *name, Address: trimmedOrNil(req.NewVendorAddress)}
		}
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, repository.ReceiptItemInput{
			ID:                  item.ID,
			Description:         item.Description,
			Quantity:            *item.Quantity,
			UnitPrice:           *item.UnitPrice,
			TotalPrice:          *item.TotalPrice,
			CategoryID:          item.CategoryID,
			DeductibilityID:     item.DeductibilityID,
			DeductionPercentage: item.DeductionPercentage,
			Notes:               item.Notes,
		})
	}

	return input, nil, nil
}

// decodeExtractedReceipt разбирает чек в формате распознавания. Позиции
// получают тип вычета по флагу is_deductible.
func decodeExtractedReceipt(c echo.Context, raw []byte) (repository.NamedReceiptInput, FieldErrors, error) {
	var req ExtractedReceiptRequest
	errs := FieldErrors{}
	if err := decodePayload(raw, &req); err != nil {
		errs.Add("payload", "The payload must be a valid JSON object.")
		return repository.NamedReceiptInput{}, errs, nil
	}
	req.VendorName = strings.TrimSpace(req.VendorName)
	for i := range req.Items {
		req.Items[i].Description = strings.TrimSpace(req.Items[i].Description)
	}

	if err := errs.Merge(c.Validate(&req)); err != nil {
		return repository.NamedReceiptInput{}, nil, err
	}

	date, ok := parseReceiptDate(req.Date)
	if req.Date != "" && !ok {
		errs.Add("date", "The date field must be a valid date.")
	}
	errs.DecimalRange("total_amount", req.TotalAmount, decimal.Zero, nil)
	for i, item := range req.Items {
		checkItemAmounts(errs, i, item.Quantity, item.UnitPrice, item.TotalPrice)
	}
	if len(errs) > 0 {
		return repository.NamedReceiptInput{}, errs, nil
	}

	deductibility := models.DeductibilityNon
	if req.IsDeductible {
		deductibility = models.DeductibilityFully
	}

	input := repository.NamedReceiptInput{
		VendorName:    req.VendorName,
		VendorAddress: trimmedOrNil(req.VendorAddress),
		PaymentMethod: trimmedOrNil(req.PaymentMethod),
		ReceiptDate:   date,
		TotalAmount:   *req.TotalAmount,
		Currency:      normalizeCurrency(req.Currency),
		Notes:         req.Notes,
		Items:         make([]repository.NamedItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, repository.NamedItemInput{
			Description:     item.Description,
			Quantity:        *item.Quantity,
			UnitPrice:       *item.UnitPrice,
			TotalPrice:      *item.TotalPrice,
			Category:        trimmedOrNil(item.ExpenseCategory),
			DeductibilityID: deductibility,
		})
	}

	return input, nil, nil
}

func checkItemAmounts(errs FieldErrors, index int, quantity, unitPrice, totalPrice *decimal.Decimal) {
	errs.DecimalRange(itemField(index, "quantity"), quantity, minQuantity, nil)
	errs.DecimalRange(itemField(index, "unit_price"), unitPrice, decimal.Zero, nil)
	errs.DecimalRange(itemField(index, "total_price"), totalPrice, decimal.Zero, nil)
}

func itemField(index int, name string) string {
	return fmt.Sprintf("items.%d.%s", index, name)
}

// parseReceiptDate принимает ISO-даты и локальный формат дд/мм/гг(гг).
func parseReceiptDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range receiptDateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func normalizeCurrency(value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return models.DefaultCurrency
	}
	return strings.ToUpper(strings.TrimSpace(*value))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func decodePayload(raw []byte, dst any) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(raw, dst)
}
