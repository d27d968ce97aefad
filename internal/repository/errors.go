package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid input")
)

// ReferenceError сообщает, что поле ссылается на несуществующую запись.
type ReferenceError struct {
	Field string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s references a missing record", e.Field)
}

// foreignKeyFields сопоставляет имена ограничений с полями запроса.
var foreignKeyFields = map[string]string{
	"receipts_vendor_id_fkey":             "vendor_id",
	"receipts_payment_method_id_fkey":     "payment_method_id",
	"receipt_items_category_id_fkey":      "category_id",
	"receipt_items_deductibility_id_fkey": "deductibility_id",
}

// mapWriteError переводит ошибки PostgreSQL в ошибки репозитория.
func mapWriteError(err error, itemIndex int) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505":
		return ErrConflict
	case "23503":
		field, ok := foreignKeyFields[pgErr.ConstraintName]
		if !ok {
			return err
		}
		if itemIndex >= 0 {
			field = fmt.Sprintf("items.%d.%s", itemIndex, field)
		}
		return &ReferenceError{Field: field}
	case "23514":
		return ErrInvalid
	}

	return err
}
