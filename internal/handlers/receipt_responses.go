package handlers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/repository"
	"example.com/receipt-tax-tracker/backend/internal/storage"
)

type ReceiptResponse struct {
	ID                uuid.UUID       `json:"id"`
	VendorID          *int64          `json:"vendor_id"`
	VendorName        *string         `json:"vendor_name"`
	ReceiptDate       string          `json:"receipt_date"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Currency          string          `json:"currency"`
	PaymentMethodID   *int64          `json:"payment_method_id"`
	PaymentMethodName *string         `json:"payment_method_name"`
	ReceiptNumber     *string         `json:"receipt_number"`
	Notes             *string         `json:"notes"`
	ItemCount         int             `json:"item_count"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

type ReceiptItemResponse struct {
	ID                  uuid.UUID        `json:"id"`
	Description         string           `json:"description"`
	Quantity            decimal.Decimal  `json:"quantity"`
	UnitPrice           decimal.Decimal  `json:"unit_price"`
	TotalPrice          decimal.Decimal  `json:"total_price"`
	CategoryID          *int64           `json:"category_id"`
	CategoryName        *string          `json:"category_name"`
	DeductibilityID     *int16           `json:"deductibility_id"`
	DeductibilityName   *string          `json:"deductibility_name"`
	DeductionPercentage *decimal.Decimal `json:"deduction_percentage"`
	Notes               *string          `json:"notes"`
	SortOrder           int              `json:"sort_order"`
}

type ReceiptImageResponse struct {
	ID               uuid.UUID `json:"id"`
	ImagePath        string    `json:"image_path"`
	URL              string    `json:"url"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	FileSize         int64     `json:"file_size"`
	CreatedAt        string    `json:"created_at"`
}

type ReceiptDetailResponse struct {
	ReceiptResponse
	Vendor        *models.Vendor         `json:"vendor"`
	PaymentMethod *models.PaymentMethod  `json:"payment_method"`
	Items         []ReceiptItemResponse  `json:"items"`
	Images        []ReceiptImageResponse `json:"images"`
}

type ReceiptPageResponse struct {
	Data        []ReceiptResponse `json:"data"`
	CurrentPage int               `json:"current_page"`
	PerPage     int               `json:"per_page"`
	Total       int               `json:"total"`
	LastPage    int               `json:"last_page"`
}

// ReceiptFormResponse содержит справочники для формы чека.
type ReceiptFormResponse struct {
	Receipt            *ReceiptDetailResponse     `json:"receipt,omitempty"`
	Vendors            []models.Vendor            `json:"vendors"`
	Categories         []models.ExpenseCategory   `json:"categories"`
	PaymentMethods     []models.PaymentMethod     `json:"payment_methods"`
	DeductibilityTypes []models.DeductibilityType `json:"deductibility_types"`
}

func toReceiptResponse(entry repository.ReceiptListEntry) ReceiptResponse {
	response := receiptFields(entry.Receipt)
	response.VendorName = entry.VendorName
	response.PaymentMethodName = entry.PaymentMethodName
	response.ItemCount = entry.ItemCount
	return response
}

func toReceiptDetailResponse(detail repository.ReceiptDetail, images storage.ImageStore) ReceiptDetailResponse {
	response := ReceiptDetailResponse{
		ReceiptResponse: receiptFields(detail.Receipt),
		Vendor:          detail.Vendor,
		PaymentMethod:   detail.PaymentMethod,
		Items:           make([]ReceiptItemResponse, 0, len(detail.Items)),
		Images:          make([]ReceiptImageResponse, 0, len(detail.Images)),
	}
	if detail.Vendor != nil {
		response.VendorName = &detail.Vendor.Name
	}
	if detail.PaymentMethod != nil {
		response.PaymentMethodName = &detail.PaymentMethod.Name
	}
	response.ItemCount = len(detail.Items)

	for _, item := range detail.Items {
		response.Items = append(response.Items, ReceiptItemResponse{
			ID:                  item.Item.ID,
			Description:         item.Item.Description,
			Quantity:            item.Item.Quantity,
			UnitPrice:           item.Item.UnitPrice,
			TotalPrice:          item.Item.TotalPrice,
			CategoryID:          item.Item.CategoryID,
			CategoryName:        item.CategoryName,
			DeductibilityID:     item.Item.DeductibilityID,
			DeductibilityName:   item.DeductibilityName,
			DeductionPercentage: item.Item.DeductionPercentage,
			Notes:               item.Item.Notes,
			SortOrder:           item.Item.SortOrder,
		})
	}

	for _, image := range detail.Images {
		url := ""
		if images != nil {
			url = images.URL(image.ImagePath)
		}
		response.Images = append(response.Images, ReceiptImageResponse{
			ID:               image.ID,
			ImagePath:        image.ImagePath,
			URL:              url,
			OriginalFilename: image.OriginalFilename,
			MimeType:         image.MimeType,
			FileSize:         image.FileSize,
			CreatedAt:        image.CreatedAt.Format(timeLayout),
		})
	}

	return response
}

func receiptFields(receipt models.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:              receipt.ID,
		VendorID:        receipt.VendorID,
		ReceiptDate:     receipt.ReceiptDate.Format(dateLayout),
		TotalAmount:     receipt.TotalAmount,
		Currency:        receipt.Currency,
		PaymentMethodID: receipt.PaymentMethodID,
		ReceiptNumber:   receipt.ReceiptNumber,
		Notes:           receipt.Notes,
		CreatedAt:       receipt.CreatedAt.Format(timeLayout),
		UpdatedAt:       receipt.UpdatedAt.Format(timeLayout),
	}
}
