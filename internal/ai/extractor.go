package ai

import (
	"context"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

const ProviderMock = "mock"

// Extractor распознает данные чека по изображению.
type Extractor interface {
	ExtractReceipt(ctx context.Context, image Image) (Extraction, Trace, error)
}

// MockExtractor возвращает заготовленные чеки по очереди, по одному на вызов.
type MockExtractor struct {
	next atomic.Uint64
}

// NewMockExtractor создает распознаватель на фиксированных данных.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// ExtractReceipt возвращает следующий заготовленный чек.
func (m *MockExtractor) ExtractReceipt(ctx context.Context, image Image) (Extraction, Trace, error) {
	trace := Trace{Provider: ProviderMock, Model: ProviderMock}
	if err := ctx.Err(); err != nil {
		return Extraction{}, trace, err
	}

	fixtures := mockReceipts()
	n := m.next.Add(1) - 1
	return fixtures[n%uint64(len(fixtures))], trace, nil
}

func mockReceipts() []Extraction {
	sogoAddress := "LG-K11, Kompleks SOGO, 190 Jalan Tuanku Abdul Rahman, 50100 Kuala Lumpur."
	machinesAddress := "No. 3, Jalan Kajibumi U1/70, Temasya Niaga, Temasya Glenmarie, Seksyen U1"

	macMini := ExtractionItem{
		Description:     "Apple Mac mini M4 chip 16GB RAM, 512GB SSD",
		Quantity:        decimal.NewFromInt(1),
		UnitPrice:       decimal.RequireFromString("3349.00"),
		TotalPrice:      decimal.RequireFromString("3349.00"),
		ExpenseCategory: "Electronic Gadget",
	}

	return []Extraction{
		{
			VendorName:  "Uncle Jack SOGO",
			TotalAmount: decimal.RequireFromString("14.00"),
			Date:        "26/04/25",
			Currency:    "MYR",
			Items: []ExtractionItem{{
				Description:     "UJ SIGNATURE BURGER W FRIED CHICKEN",
				Quantity:        decimal.NewFromInt(1),
				UnitPrice:       decimal.RequireFromString("13.20"),
				TotalPrice:      decimal.RequireFromString("13.20"),
				ExpenseCategory: "Food",
				Notes:           "Client dinner",
			}},
			PaymentMethod: "Credit Card",
			VendorAddress: sogoAddress,
			Notes:         "client dinner",
			IsDeductible:  true,
		},
		{
			VendorName:    "Machines Sdn Bhd",
			TotalAmount:   decimal.RequireFromString("3154.19"),
			Date:          "2025-02-12",
			Currency:      "MYR",
			Items:         []ExtractionItem{macMini},
			PaymentMethod: "SPayLater",
			VendorAddress: machinesAddress,
			IsDeductible:  true,
		},
		{
			VendorName:  "Uncle Jack SOGO",
			TotalAmount: decimal.RequireFromString("3.07"),
			Date:        "26/04/25",
			Currency:    "USD",
			Items: []ExtractionItem{{
				Description:     "UJ SIGNATURE BURGER W FRIED CHICKEN",
				Quantity:        decimal.NewFromInt(1),
				UnitPrice:       decimal.RequireFromString("3.07"),
				TotalPrice:      decimal.RequireFromString("3.07"),
				ExpenseCategory: "Miscellaneous",
			}},
			PaymentMethod:     "Credit Card",
			VendorAddress:     sogoAddress,
			IsDeductible:      false,
			ConversionMessage: "Receipt processed in USD, converted to MYR for tax purposes. Please verify the actual amount with your bank transaction.",
		},
		{
			VendorName:    "Machines Sdn Bhd",
			TotalAmount:   decimal.RequireFromString("3154.19"),
			Date:          "2025-02-12",
			Currency:      "MYR",
			Items:         []ExtractionItem{macMini},
			PaymentMethod: "SPayLater",
			VendorAddress: machinesAddress,
			IsDeductible:  true,
		},
		{
			VendorName:  "Amazon Web Services",
			TotalAmount: decimal.RequireFromString("125.50"),
			Date:        "2025-03-01",
			Currency:    "USD",
			Items: []ExtractionItem{
				{
					Description:     "EC2 Instance Usage",
					Quantity:        decimal.NewFromInt(1),
					UnitPrice:       decimal.RequireFromString("85.30"),
					TotalPrice:      decimal.RequireFromString("85.30"),
					ExpenseCategory: "Cloud Services",
				},
				{
					Description:     "S3 Storage",
					Quantity:        decimal.NewFromInt(1),
					UnitPrice:       decimal.RequireFromString("40.20"),
					TotalPrice:      decimal.RequireFromString("40.20"),
					ExpenseCategory: "Cloud Services",
				},
			},
			PaymentMethod:     "Credit Card",
			VendorAddress:     "410 Terry Ave N, Seattle, WA 98109, United States",
			Notes:             "Monthly cloud services",
			IsDeductible:      true,
			ConversionMessage: "Receipt processed in USD. Converted to MYR at the rate of 1 USD = 4.15 MYR. Total in MYR: RM 520.83",
		},
	}
}
