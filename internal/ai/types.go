package ai

import "github.com/shopspring/decimal"

// Image is a receipt picture handed to an Extractor.
type Image struct {
	Filename string
	MimeType string
	Data     []byte
}

type Extraction struct {
	VendorName        string           `json:"vendor_name"`
	TotalAmount       decimal.Decimal  `json:"total_amount"`
	Date              string           `json:"date"`
	Currency          string           `json:"currency,omitempty"`
	Items             []ExtractionItem `json:"items"`
	PaymentMethod     string           `json:"payment_method,omitempty"`
	VendorAddress     string           `json:"vendor_address,omitempty"`
	Notes             string           `json:"notes"`
	IsDeductible      bool             `json:"is_deductible"`
	ConversionMessage string           `json:"conversion_message,omitempty"`
}

type ExtractionItem struct {
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	ExpenseCategory string          `json:"expense_category,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// Trace describes one provider call for the request log.
type Trace struct {
	Provider string
	Model    string
	Prompt   string
	Raw      []byte
}

type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
