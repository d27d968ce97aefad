package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

const receiptColumns = `r.id, r.user_id, r.vendor_id, r.receipt_date, r.total_amount, r.currency,
	r.payment_method_id, r.receipt_number, r.notes, r.created_at, r.updated_at`

const itemColumns = `i.id, i.receipt_id, i.description, i.quantity, i.unit_price, i.total_price,
	i.category_id, i.deductibility_id, i.deduction_percentage, i.notes, i.sort_order, i.created_at, i.updated_at`

type ReceiptRepository struct {
	db *pgxpool.Pool
}

type ReceiptInput struct {
	VendorID        *int64
	NewVendor       *VendorInput
	ReceiptDate     time.Time
	TotalAmount     decimal.Decimal
	Currency        string
	PaymentMethodID *int64
	ReceiptNumber   *string
	Notes           *string
	Items           []ReceiptItemInput
	Image           *ImageInput
}

type VendorInput struct {
	Name    string
	Address *string
}

type ReceiptItemInput struct {
	ID                  *uuid.UUID
	Description         string
	Quantity            decimal.Decimal
	UnitPrice           decimal.Decimal
	TotalPrice          decimal.Decimal
	CategoryID          *int64
	DeductibilityID     *int16
	DeductionPercentage *decimal.Decimal
	Notes               *string
}

type ImageInput struct {
	Path             string
	OriginalFilename string
	MimeType         string
	FileSize         int64
}

// NamedReceiptInput описывает чек, в котором справочники заданы именами.
// Так приходят данные распознавания.
type NamedReceiptInput struct {
	VendorName    string
	VendorAddress *string
	PaymentMethod *string
	ReceiptDate   time.Time
	TotalAmount   decimal.Decimal
	Currency      string
	Notes         *string
	Items         []NamedItemInput
}

type NamedItemInput struct {
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	TotalPrice      decimal.Decimal
	Category        *string
	DeductibilityID int16
}

type ReceiptListEntry struct {
	Receipt           models.Receipt
	VendorName        *string
	PaymentMethodName *string
	ItemCount         int
}

type ReceiptItemDetail struct {
	Item              models.ReceiptItem
	CategoryName      *string
	DeductibilityName *string
}

type ReceiptDetail struct {
	Receipt       models.Receipt
	Vendor        *models.Vendor
	PaymentMethod *models.PaymentMethod
	Items         []ReceiptItemDetail
	Images        []models.ReceiptImage
}

// NewReceiptRepository создает репозиторий чеков.
func NewReceiptRepository(db *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create сохраняет чек, его позиции и изображение одной транзакцией.
func (r *ReceiptRepository) Create(ctx context.Context, userID uuid.UUID, input ReceiptInput) (models.Receipt, error) {
	var receipt models.Receipt

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return receipt, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	receipt, err = insertReceiptTx(ctx, tx, userID, input)
	if err != nil {
		return receipt, err
	}

	if err := tx.Commit(ctx); err != nil {
		return receipt, err
	}

	return receipt, nil
}

// CreateFromNamed сохраняет чек, находя или создавая продавца, способ
// оплаты и категории по именам.
func (r *ReceiptRepository) CreateFromNamed(ctx context.Context, userID uuid.UUID, input NamedReceiptInput) (models.Receipt, error) {
	var receipt models.Receipt

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return receipt, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	vendorID, err := findOrCreateVendor(ctx, tx, input.VendorName, input.VendorAddress)
	if err != nil {
		return receipt, err
	}

	resolved := ReceiptInput{
		VendorID:    &vendorID,
		ReceiptDate: input.ReceiptDate,
		TotalAmount: input.TotalAmount,
		Currency:    input.Currency,
		Notes:       input.Notes,
		Items:       make([]ReceiptItemInput, 0, len(input.Items)),
	}

	if input.PaymentMethod != nil {
		paymentID, err := findOrCreatePaymentMethod(ctx, tx, userID, *input.PaymentMethod)
		if err != nil {
			return receipt, err
		}
		resolved.PaymentMethodID = &paymentID
	}

	for _, item := range input.Items {
		deductibilityID := item.DeductibilityID
		resolvedItem := ReceiptItemInput{
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			TotalPrice:      item.TotalPrice,
			DeductibilityID: &deductibilityID,
		}

		if item.Category != nil {
			categoryID, err := findOrCreateCategory(ctx, tx, userID, *item.Category)
			if err != nil {
				return receipt, err
			}
			resolvedItem.CategoryID = &categoryID
		}

		resolved.Items = append(resolved.Items, resolvedItem)
	}

	receipt, err = insertReceiptTx(ctx, tx, userID, resolved)
	if err != nil {
		return receipt, err
	}

	if err := tx.Commit(ctx); err != nil {
		return receipt, err
	}

	return receipt, nil
}

// Update обновляет чек и синхронизирует его позиции: совпавшие по id
// обновляются, новые добавляются, отсутствующие удаляются.
func (r *ReceiptRepository) Update(ctx context.Context, receiptID uuid.UUID, input ReceiptInput) (models.Receipt, error) {
	var receipt models.Receipt

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return receipt, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	vendorID, err := resolveVendorTx(ctx, tx, input)
	if err != nil {
		return receipt, err
	}

	row := tx.QueryRow(ctx,
		`UPDATE receipts r
		 SET vendor_id = $2,
		     receipt_date = $3,
		     total_amount = $4,
		     currency = COALESCE(NULLIF($5, ''), r.currency),
		     payment_method_id = $6,
		     receipt_number = $7,
		     notes = $8,
		     updated_at = NOW()
		 WHERE r.id = $1
		 RETURNING `+receiptColumns,
		receiptID, vendorID, input.ReceiptDate, input.TotalAmount, input.Currency,
		input.PaymentMethodID, input.ReceiptNumber, input.Notes,
	)
	receipt, err = scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return receipt, ErrNotFound
		}
		return receipt, mapWriteError(err, -1)
	}

	existing, err := lockItemIDs(ctx, tx, receiptID)
	if err != nil {
		return receipt, err
	}

	diff, err := diffItems(existing, input.Items)
	if err != nil {
		return receipt, err
	}

	if len(diff.remove) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM receipt_items WHERE receipt_id = $1 AND id = ANY($2)`,
			receiptID, diff.remove,
		); err != nil {
			return receipt, err
		}
	}

	for idx, item := range input.Items {
		if item.ID == nil {
			if err := insertItemTx(ctx, tx, receiptID, idx, item); err != nil {
				return receipt, err
			}
			continue
		}

		_, err := tx.Exec(ctx,
			`UPDATE receipt_items
			 SET description = $3,
			     quantity = $4,
			     unit_price = $5,
			     total_price = $6,
			     category_id = $7,
			     deductibility_id = $8,
			     deduction_percentage = $9,
			     notes = $10,
			     sort_order = $11,
			     updated_at = NOW()
			 WHERE id = $1 AND receipt_id = $2`,
			*item.ID, receiptID, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice,
			item.CategoryID, item.DeductibilityID, item.DeductionPercentage, item.Notes, idx,
		)
		if err != nil {
			return receipt, mapWriteError(err, idx)
		}
	}

	if input.Image != nil {
		if err := insertImageTx(ctx, tx, receiptID, *input.Image); err != nil {
			return receipt, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return receipt, err
	}

	return receipt, nil
}

// Delete удаляет чек; позиции и изображения удаляются каскадом.
func (r *ReceiptRepository) Delete(ctx context.Context, receiptID uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM receipts WHERE id = $1`, receiptID)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID возвращает чек без проверки владельца.
func (r *ReceiptRepository) GetByID(ctx context.Context, receiptID uuid.UUID) (models.Receipt, error) {
	row := r.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts r WHERE r.id = $1`, receiptID)

	receipt, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return receipt, ErrNotFound
		}
		return receipt, err
	}

	return receipt, nil
}

// GetDetail возвращает чек с продавцом, способом оплаты, позициями и изображениями.
func (r *ReceiptRepository) GetDetail(ctx context.Context, receiptID uuid.UUID) (ReceiptDetail, error) {
	var detail ReceiptDetail

	receipt, err := r.GetByID(ctx, receiptID)
	if err != nil {
		return detail, err
	}
	detail.Receipt = receipt

	if receipt.VendorID != nil {
		var vendor models.Vendor
		err := r.db.QueryRow(ctx,
			`SELECT id, name, address FROM vendors WHERE id = $1`,
			*receipt.VendorID,
		).Scan(&vendor.ID, &vendor.Name, &vendor.Address)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return detail, err
		}
		if err == nil {
			detail.Vendor = &vendor
		}
	}

	if receipt.PaymentMethodID != nil {
		var method models.PaymentMethod
		err := r.db.QueryRow(ctx,
			`SELECT id, user_id, name FROM payment_methods WHERE id = $1`,
			*receipt.PaymentMethodID,
		).Scan(&method.ID, &method.UserID, &method.Name)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return detail, err
		}
		if err == nil {
			detail.PaymentMethod = &method
		}
	}

	items, err := r.listItemDetails(ctx, []uuid.UUID{receiptID})
	if err != nil {
		return detail, err
	}
	detail.Items = items[receiptID]
	if detail.Items == nil {
		detail.Items = make([]ReceiptItemDetail, 0)
	}

	images, err := r.ListImages(ctx, receiptID)
	if err != nil {
		return detail, err
	}
	detail.Images = images

	return detail, nil
}

// ListByUser возвращает страницу чеков пользователя, новые сверху, и общее количество.
func (r *ReceiptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ReceiptListEntry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM receipts WHERE user_id = $1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	entries, err := r.listEntries(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Recent возвращает последние чеки пользователя.
func (r *ReceiptRepository) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]ReceiptListEntry, error) {
	return r.listEntries(ctx, userID, limit, 0)
}

// ListForExport возвращает все чеки пользователя вместе с позициями.
func (r *ReceiptRepository) ListForExport(ctx context.Context, userID uuid.UUID) ([]ReceiptDetail, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+receiptColumns+`, v.id, v.name, v.address, pm.id, pm.user_id, pm.name
		 FROM receipts r
		 LEFT JOIN vendors v ON v.id = r.vendor_id
		 LEFT JOIN payment_methods pm ON pm.id = r.payment_method_id
		 WHERE r.user_id = $1
		 ORDER BY r.receipt_date DESC, r.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]ReceiptDetail, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var detail ReceiptDetail
		var vendorID, paymentID *int64
		var vendorName, vendorAddress, paymentName *string
		var paymentUserID *uuid.UUID

		receipt := &detail.Receipt
		if err := rows.Scan(
			&receipt.ID, &receipt.UserID, &receipt.VendorID, &receipt.ReceiptDate, &receipt.TotalAmount, &receipt.Currency,
			&receipt.PaymentMethodID, &receipt.ReceiptNumber, &receipt.Notes, &receipt.CreatedAt, &receipt.UpdatedAt,
			&vendorID, &vendorName, &vendorAddress, &paymentID, &paymentUserID, &paymentName,
		); err != nil {
			return nil, err
		}

		if vendorID != nil && vendorName != nil {
			detail.Vendor = &models.Vendor{ID: *vendorID, Name: *vendorName, Address: vendorAddress}
		}
		if paymentID != nil && paymentName != nil && paymentUserID != nil {
			detail.PaymentMethod = &models.PaymentMethod{ID: *paymentID, UserID: *paymentUserID, Name: *paymentName}
		}

		details = append(details, detail)
		ids = append(ids, receipt.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.listItemDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range details {
		details[i].Items = items[details[i].Receipt.ID]
		if details[i].Items == nil {
			details[i].Items = make([]ReceiptItemDetail, 0)
		}
	}

	return details, nil
}

// ListImages возвращает изображения чека.
func (r *ReceiptRepository) ListImages(ctx context.Context, receiptID uuid.UUID) ([]models.ReceiptImage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, receipt_id, image_path, original_filename, mime_type, file_size, created_at
		 FROM receipt_images
		 WHERE receipt_id = $1
		 ORDER BY created_at`,
		receiptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := make([]models.ReceiptImage, 0)
	for rows.Next() {
		var image models.ReceiptImage
		if err := rows.Scan(&image.ID, &image.ReceiptID, &image.ImagePath, &image.OriginalFilename, &image.MimeType, &image.FileSize, &image.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, image)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return images, nil
}

func (r *ReceiptRepository) listEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ReceiptListEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+receiptColumns+`, v.name, pm.name,
		        (SELECT COUNT(*) FROM receipt_items i WHERE i.receipt_id = r.id) AS item_count
		 FROM receipts r
		 LEFT JOIN vendors v ON v.id = r.vendor_id
		 LEFT JOIN payment_methods pm ON pm.id = r.payment_method_id
		 WHERE r.user_id = $1
		 ORDER BY r.receipt_date DESC, r.created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]ReceiptListEntry, 0)
	for rows.Next() {
		var entry ReceiptListEntry
		receipt := &entry.Receipt
		if err := rows.Scan(
			&receipt.ID, &receipt.UserID, &receipt.VendorID, &receipt.ReceiptDate, &receipt.TotalAmount, &receipt.Currency,
			&receipt.PaymentMethodID, &receipt.ReceiptNumber, &receipt.Notes, &receipt.CreatedAt, &receipt.UpdatedAt,
			&entry.VendorName, &entry.PaymentMethodName, &entry.ItemCount,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *ReceiptRepository) listItemDetails(ctx context.Context, receiptIDs []uuid.UUID) (map[uuid.UUID][]ReceiptItemDetail, error) {
	result := make(map[uuid.UUID][]ReceiptItemDetail, len(receiptIDs))
	if len(receiptIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`, c.name, d.name
		 FROM receipt_items i
		 LEFT JOIN expense_categories c ON c.id = i.category_id
		 LEFT JOIN deductibility_types d ON d.id = i.deductibility_id
		 WHERE i.receipt_id = ANY($1)
		 ORDER BY i.sort_order, i.created_at`,
		receiptIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var detail ReceiptItemDetail
		item := &detail.Item
		if err := rows.Scan(
			&item.ID, &item.ReceiptID, &item.Description, &item.Quantity, &item.UnitPrice, &item.TotalPrice,
			&item.CategoryID, &item.DeductibilityID, &item.DeductionPercentage, &item.Notes, &item.SortOrder,
			&item.CreatedAt, &item.UpdatedAt, &detail.CategoryName, &detail.DeductibilityName,
		); err != nil {
			return nil, err
		}
		result[item.ReceiptID] = append(result[item.ReceiptID], detail)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func insertReceiptTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, input ReceiptInput) (models.Receipt, error) {
	var receipt models.Receipt

	if len(input.Items) == 0 {
		return receipt, ErrInvalid
	}

	vendorID, err := resolveVendorTx(ctx, tx, input)
	if err != nil {
		return receipt, err
	}

	currency := input.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO receipts AS r (id, user_id, vendor_id, receipt_date, total_amount, currency, payment_method_id, receipt_number, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+receiptColumns,
		uuid.New(), userID, vendorID, input.ReceiptDate, input.TotalAmount, currency,
		input.PaymentMethodID, input.ReceiptNumber, input.Notes,
	)
	receipt, err = scanReceipt(row)
	if err != nil {
		return receipt, mapWriteError(err, -1)
	}

	for idx, item := range input.Items {
		if err := insertItemTx(ctx, tx, receipt.ID, idx, item); err != nil {
			return receipt, err
		}
	}

	if input.Image != nil {
		if err := insertImageTx(ctx, tx, receipt.ID, *input.Image); err != nil {
			return receipt, err
		}
	}

	return receipt, nil
}

func resolveVendorTx(ctx context.Context, tx pgx.Tx, input ReceiptInput) (*int64, error) {
	if input.NewVendor == nil {
		return input.VendorID, nil
	}

	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO vendors (name, address) VALUES ($1, $2) RETURNING id`,
		input.NewVendor.Name, input.NewVendor.Address,
	).Scan(&id)
	if err != nil {
		return nil, err
	}

	return &id, nil
}

func insertItemTx(ctx context.Context, tx pgx.Tx, receiptID uuid.UUID, idx int, item ReceiptItemInput) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO receipt_items
		 (id, receipt_id, description, quantity, unit_price, total_price, category_id, deductibility_id, deduction_percentage, notes, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), receiptID, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice,
		item.CategoryID, item.DeductibilityID, item.DeductionPercentage, item.Notes, idx,
	)
	if err != nil {
		return mapWriteError(err, idx)
	}
	return nil
}

func insertImageTx(ctx context.Context, tx pgx.Tx, receiptID uuid.UUID, image ImageInput) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO receipt_images (id, receipt_id, image_path, original_filename, mime_type, file_size)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), receiptID, image.Path, image.OriginalFilename, image.MimeType, image.FileSize,
	)
	return err
}

func lockItemIDs(ctx context.Context, tx pgx.Tx, receiptID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM receipt_items WHERE receipt_id = $1 ORDER BY sort_order, created_at FOR UPDATE`,
		receiptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

type itemDiff struct {
	update []uuid.UUID
	insert int
	remove []uuid.UUID
}

// diffItems сравнивает сохраненные позиции с присланными. Присланный id,
// которого нет у чека, или повторный id считается ошибкой ссылки.
func diffItems(existing []uuid.UUID, items []ReceiptItemInput) (itemDiff, error) {
	diff := itemDiff{
		update: make([]uuid.UUID, 0),
		remove: make([]uuid.UUID, 0),
	}

	known := make(map[uuid.UUID]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	kept := make(map[uuid.UUID]struct{}, len(items))
	for idx, item := range items {
		if item.ID == nil {
			diff.insert++
			continue
		}

		if _, ok := known[*item.ID]; !ok {
			return diff, &ReferenceError{Field: fmt.Sprintf("items.%d.id", idx)}
		}
		if _, dup := kept[*item.ID]; dup {
			return diff, &ReferenceError{Field: fmt.Sprintf("items.%d.id", idx)}
		}

		kept[*item.ID] = struct{}{}
		diff.update = append(diff.update, *item.ID)
	}

	for _, id := range existing {
		if _, ok := kept[id]; !ok {
			diff.remove = append(diff.remove, id)
		}
	}

	return diff, nil
}

func scanReceipt(row pgx.Row) (models.Receipt, error) {
	var receipt models.Receipt
	err := row.Scan(
		&receipt.ID,
		&receipt.UserID,
		&receipt.VendorID,
		&receipt.ReceiptDate,
		&receipt.TotalAmount,
		&receipt.Currency,
		&receipt.PaymentMethodID,
		&receipt.ReceiptNumber,
		&receipt.Notes,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	return receipt, err
}
