package repository

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// TestDiffItems проверяет разбиение позиций на обновляемые, новые и удаляемые.
func TestDiffItems(t *testing.T) {
	keep := uuid.New()
	drop := uuid.New()
	other := uuid.New()

	items := []ReceiptItemInput{
		{ID: &keep, Description: "kept"},
		{Description: "new"},
		{Description: "another new"},
	}

	diff, err := diffItems([]uuid.UUID{keep, drop, other}, items)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(diff.update) != 1 || diff.update[0] != keep {
		t.Fatalf("expected update [%s], got %v", keep, diff.update)
	}
	if diff.insert != 2 {
		t.Fatalf("expected 2 inserts, got %d", diff.insert)
	}
	if len(diff.remove) != 2 || diff.remove[0] != drop || diff.remove[1] != other {
		t.Fatalf("expected remove [%s %s], got %v", drop, other, diff.remove)
	}
}

// TestDiffItemsUnknownID проверяет отказ на позицию чужого чека.
func TestDiffItemsUnknownID(t *testing.T) {
	foreign := uuid.New()
	items := []ReceiptItemInput{
		{Description: "new"},
		{ID: &foreign, Description: "foreign"},
	}

	_, err := diffItems([]uuid.UUID{uuid.New()}, items)

	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}
	if refErr.Field != "items.1.id" {
		t.Fatalf("expected items.1.id, got %s", refErr.Field)
	}
}

// TestDiffItemsDuplicateID проверяет отказ на повтор id в запросе.
func TestDiffItemsDuplicateID(t *testing.T) {
	id := uuid.New()
	items := []ReceiptItemInput{{ID: &id}, {ID: &id}}

	_, err := diffItems([]uuid.UUID{id}, items)

	var refErr *ReferenceError
	if !errors.As(err, &refErr) || refErr.Field != "items.1.id" {
		t.Fatalf("expected ReferenceError on items.1.id, got %v", err)
	}
}

// TestDiffItemsRemoveAll проверяет удаление всех старых позиций при замене.
func TestDiffItemsRemoveAll(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	diff, err := diffItems([]uuid.UUID{a, b}, []ReceiptItemInput{{Description: "fresh"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(diff.remove) != 2 || len(diff.update) != 0 || diff.insert != 1 {
		t.Fatalf("expected 2 removed, 0 updated, 1 inserted, got %+v", diff)
	}
}

// TestMapWriteError проверяет перевод кодов PostgreSQL в ошибки репозитория.
func TestMapWriteError(t *testing.T) {
	err := mapWriteError(&pgconn.PgError{Code: "23503", ConstraintName: "receipt_items_category_id_fkey"}, 2)

	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}
	if refErr.Field != "items.2.category_id" {
		t.Fatalf("expected items.2.category_id, got %s", refErr.Field)
	}

	err = mapWriteError(&pgconn.PgError{Code: "23503", ConstraintName: "receipts_vendor_id_fkey"}, -1)
	if !errors.As(err, &refErr) || refErr.Field != "vendor_id" {
		t.Fatalf("expected vendor_id reference error, got %v", err)
	}

	if err := mapWriteError(&pgconn.PgError{Code: "23505"}, -1); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mapWriteError(&pgconn.PgError{Code: "23514"}, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	plain := errors.New("boom")
	if err := mapWriteError(plain, 0); err != plain {
		t.Fatalf("expected original error, got %v", err)
	}
}
