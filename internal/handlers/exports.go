package handlers

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/repository"
)

const (
	exportFormatCSV  = "csv"
	exportFormatJSON = "json"
)

const timeLayout = time.RFC3339

type ReceiptExportResponse struct {
	ExportedAt string                  `json:"exported_at"`
	Receipts   []ReceiptDetailResponse `json:"receipts"`
}

// Export выгружает все чеки пользователя в CSV (по строке на позицию) или JSON.
func (h *ReceiptHandler) Export(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	format := strings.ToLower(strings.TrimSpace(c.Param("format")))
	if format != exportFormatCSV && format != exportFormatJSON {
		return badRequest(c, "invalid export format")
	}

	details, err := h.Receipts.ListForExport(c.Request().Context(), userID)
	if err != nil {
		return internalError(c, h.Logger, "export receipts", err)
	}

	filename := "receipts-" + time.Now().UTC().Format("20060102") + "." + format
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")

	if format == exportFormatJSON {
		response := ReceiptExportResponse{
			ExportedAt: time.Now().UTC().Format(timeLayout),
			Receipts:   make([]ReceiptDetailResponse, 0, len(details)),
		}
		for _, detail := range details {
			response.Receipts = append(response.Receipts, toReceiptDetailResponse(detail, h.Images))
		}
		return c.JSON(http.StatusOK, response)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writeReceiptsCSV(writer, details); err != nil {
		return internalError(c, h.Logger, "write receipts csv", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return internalError(c, h.Logger, "write receipts csv", err)
	}

	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func writeReceiptsCSV(writer *csv.Writer, details []repository.ReceiptDetail) error {
	header := []string{
		"receipt_id",
		"receipt_date",
		"vendor",
		"payment_method",
		"currency",
		"receipt_total",
		"item_id",
		"description",
		"quantity",
		"unit_price",
		"total_price",
		"category",
		"deductibility",
		"deduction_percentage",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, detail := range details {
		receipt := detail.Receipt
		vendor := ""
		if detail.Vendor != nil {
			vendor = detail.Vendor.Name
		}
		method := ""
		if detail.PaymentMethod != nil {
			method = detail.PaymentMethod.Name
		}

		for _, item := range detail.Items {
			percentage := ""
			if item.Item.DeductionPercentage != nil {
				percentage = item.Item.DeductionPercentage.String()
			}
			record := []string{
				receipt.ID.String(),
				receipt.ReceiptDate.Format(dateLayout),
				vendor,
				method,
				receipt.Currency,
				receipt.TotalAmount.StringFixed(2),
				item.Item.ID.String(),
				item.Item.Description,
				item.Item.Quantity.String(),
				item.Item.UnitPrice.StringFixed(2),
				item.Item.TotalPrice.StringFixed(2),
				stringOrEmpty(item.CategoryName),
				stringOrEmpty(item.DeductibilityName),
				percentage,
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	return nil
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
