package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DeductibilityFully     int16 = 1
	DeductibilityPartially int16 = 2
	DeductibilityNon       int16 = 3
)

const DefaultCurrency = "MYR"

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         *string   `json:"name,omitempty"`
	NRIC         *string   `json:"nric,omitempty"`
	PhoneNumber  *string   `json:"phone_number,omitempty"`
	TIN          *string   `json:"tin,omitempty"`
	DataFilled   bool      `json:"data_filled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserPreference struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DeductibilityType struct {
	ID        int16  `json:"id"`
	Name      string `json:"name"`
	SortOrder int16  `json:"sort_order"`
}

type Vendor struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Address *string `json:"address,omitempty"`
}

type PaymentMethod struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

type ExpenseCategory struct {
	ID     int64      `json:"id"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Name   string     `json:"name"`
}

type Receipt struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	VendorID        *int64          `json:"vendor_id,omitempty"`
	ReceiptDate     time.Time       `json:"receipt_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	PaymentMethodID *int64          `json:"payment_method_id,omitempty"`
	ReceiptNumber   *string         `json:"receipt_number,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type ReceiptItem struct {
	ID                  uuid.UUID        `json:"id"`
	ReceiptID           uuid.UUID        `json:"receipt_id"`
	Description         string           `json:"description"`
	Quantity            decimal.Decimal  `json:"quantity"`
	UnitPrice           decimal.Decimal  `json:"unit_price"`
	TotalPrice          decimal.Decimal  `json:"total_price"`
	CategoryID          *int64           `json:"category_id,omitempty"`
	DeductibilityID     *int16           `json:"deductibility_id,omitempty"`
	DeductionPercentage *decimal.Decimal `json:"deduction_percentage,omitempty"`
	Notes               *string          `json:"notes,omitempty"`
	SortOrder           int              `json:"sort_order"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type ReceiptImage struct {
	ID               uuid.UUID `json:"id"`
	ReceiptID        uuid.UUID `json:"receipt_id"`
	ImagePath        string    `json:"image_path"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	FileSize         int64     `json:"file_size"`
	CreatedAt        time.Time `json:"created_at"`
}

type RefreshToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *uuid.UUID `json:"replaced_by,omitempty"`
}
