package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestFieldKey проверяет перевод пространства имен валидатора в ключ ответа.
func TestFieldKey(t *testing.T) {
	cases := map[string]string{
		"ReceiptRequest.receipt_date":         "receipt_date",
		"ReceiptRequest.items[0].description": "items.0.description",
		"ReceiptRequest.items[12].unit_price": "items.12.unit_price",
		"ExtractedReceiptRequest.items":       "items",
	}
	for namespace, want := range cases {
		if got := fieldKey(namespace); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

// TestFirstMessage проверяет сводное сообщение об ошибках.
func TestFirstMessage(t *testing.T) {
	if got := firstMessage(FieldErrors{}); got != "The given data was invalid." {
		t.Fatalf("unexpected empty message %q", got)
	}

	errs := FieldErrors{}
	errs.Add("total_amount", "The total_amount field is required.")
	errs.Add("items.0.description", "The items.0.description field is required.")
	errs.Add("receipt_date", "The receipt_date field is required.")

	want := "The items.0.description field is required. (and 2 more errors)"
	if got := firstMessage(errs); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

// TestValidatorUsesJSONNames проверяет, что ошибки названы по JSON-тегам.
func TestValidatorUsesJSONNames(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/", nil, "", uuid.Nil)

	req := ReceiptRequest{Items: []ReceiptItemRequest{{}}}
	errs := FieldErrors{}
	if err := errs.Merge(c.Validate(&req)); err != nil {
		t.Fatalf("expected validation errors, got %v", err)
	}

	for _, field := range []string{"receipt_date", "total_amount", "items.0.description", "items.0.quantity"} {
		messages, ok := errs[field]
		if !ok {
			t.Fatalf("expected error for %s, got %v", field, errs)
		}
		if !strings.Contains(messages[0], "is required") {
			t.Fatalf("unexpected message %q", messages[0])
		}
	}
}

// TestParseReceiptDate проверяет поддерживаемые форматы даты.
func TestParseReceiptDate(t *testing.T) {
	cases := map[string]string{
		"2025-03-01":           "2025-03-01",
		"01/03/2025":           "2025-03-01",
		"15/03/24":             "2024-03-15",
		"2025-03-01T18:30:00Z": "2025-03-01",
	}
	for input, want := range cases {
		got, ok := parseReceiptDate(input)
		if !ok {
			t.Fatalf("expected %s to parse", input)
		}
		if got.Format(dateLayout) != want {
			t.Fatalf("expected %s, got %s", want, got.Format(dateLayout))
		}
	}

	if _, ok := parseReceiptDate("March 1st"); ok {
		t.Fatal("expected free text to be rejected")
	}
}
