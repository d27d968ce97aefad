package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"

	"example.com/receipt-tax-tracker/backend/internal/ai"
	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/repository"
)

type fakeJournal struct {
	mu      sync.Mutex
	entries []repository.ExtractionLog
}

func (f *fakeJournal) RecordExtraction(ctx context.Context, entry repository.ExtractionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type failingExtractor struct{}

func (failingExtractor) ExtractReceipt(ctx context.Context, image ai.Image) (ai.Extraction, ai.Trace, error) {
	return ai.Extraction{}, ai.Trace{Provider: "gemini", Model: "test"}, errors.New("upstream unavailable")
}

func imageBody(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if data != nil {
		part, err := writer.CreateFormFile(aiImageField, "scan.png")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

// TestProcessUploadRecordsExtraction проверяет распознавание загруженного файла.
func TestProcessUploadRecordsExtraction(t *testing.T) {
	journal := &fakeJournal{}
	h := NewReceiptAIHandler(newFakeReceiptStore(), newFakeImageStore(), ai.NewMockExtractor(), journal, nil, testUpload(), nil)
	userID := uuid.New()

	body, contentType := imageBody(t, testPNG(t))
	c, rec := newTestContext(http.MethodPost, "/receipts/images/process-ai", body, contentType, userID)
	if err := h.ProcessUpload(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var extraction map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &extraction); err != nil {
		t.Fatalf("expected valid json, got %v", err)
	}
	if extraction["vendor_name"] != "Uncle Jack SOGO" {
		t.Fatalf("unexpected vendor %v", extraction["vendor_name"])
	}

	if len(journal.entries) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(journal.entries))
	}
	entry := journal.entries[0]
	if entry.UserID != userID || entry.ReceiptID != nil || entry.Err != nil {
		t.Fatalf("unexpected journal entry %+v", entry)
	}
	if entry.Provider != ai.ProviderMock || len(entry.Result) == 0 {
		t.Fatalf("unexpected journal entry %+v", entry)
	}
}

// TestProcessUploadRequiresImage проверяет ошибку без файла.
func TestProcessUploadRequiresImage(t *testing.T) {
	h := NewReceiptAIHandler(newFakeReceiptStore(), newFakeImageStore(), ai.NewMockExtractor(), nil, nil, testUpload(), nil)

	body, contentType := imageBody(t, nil)
	c, rec := newTestContext(http.MethodPost, "/receipts/images/process-ai", body, contentType, uuid.New())
	if err := h.ProcessUpload(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if _, ok := decodeErrors(t, rec.Body.Bytes())[aiImageField]; !ok {
		t.Fatal("expected error for image")
	}
}

// TestProcessReceiptUsesStoredImage проверяет распознавание сохраненного изображения чека.
func TestProcessReceiptUsesStoredImage(t *testing.T) {
	store := newFakeReceiptStore()
	images := newFakeImageStore()
	journal := &fakeJournal{}
	userID := uuid.New()
	receipt := store.add(userID)

	key := "receipts/" + userID.String() + "/scan.png"
	images.objects[key] = testPNG(t)
	store.images[receipt.ID] = []models.ReceiptImage{{
		ReceiptID:        receipt.ID,
		ImagePath:        key,
		OriginalFilename: "scan.png",
		MimeType:         "image/png",
	}}

	h := NewReceiptAIHandler(store, images, ai.NewMockExtractor(), journal, nil, testUpload(), nil)
	c, rec := newTestContext(http.MethodPost, "/receipts/"+receipt.ID.String()+"/process-ai", nil, "", userID)
	if err := h.ProcessReceipt(withID(c, receipt.ID)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(journal.entries) != 1 || journal.entries[0].ReceiptID == nil || *journal.entries[0].ReceiptID != receipt.ID {
		t.Fatalf("expected journal entry for receipt %s, got %+v", receipt.ID, journal.entries)
	}
}

// TestProcessReceiptForbidden проверяет доступ к чужому чеку.
func TestProcessReceiptForbidden(t *testing.T) {
	store := newFakeReceiptStore()
	journal := &fakeJournal{}
	receipt := store.add(uuid.New())

	h := NewReceiptAIHandler(store, newFakeImageStore(), ai.NewMockExtractor(), journal, nil, testUpload(), nil)
	c, rec := newTestContext(http.MethodPost, "/receipts/"+receipt.ID.String()+"/process-ai", nil, "", uuid.New())
	if err := h.ProcessReceipt(withID(c, receipt.ID)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(journal.entries) != 0 {
		t.Fatalf("expected no journal entries, got %d", len(journal.entries))
	}
}

// TestProcessUploadProviderFailure проверяет ответ и журнал при сбое провайдера.
func TestProcessUploadProviderFailure(t *testing.T) {
	journal := &fakeJournal{}
	h := NewReceiptAIHandler(newFakeReceiptStore(), newFakeImageStore(), failingExtractor{}, journal, nil, testUpload(), nil)

	body, contentType := imageBody(t, testPNG(t))
	c, rec := newTestContext(http.MethodPost, "/receipts/images/process-ai", body, contentType, uuid.New())
	if err := h.ProcessUpload(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(journal.entries) != 1 || journal.entries[0].Err == nil || journal.entries[0].Result != nil {
		t.Fatalf("expected failed journal entry, got %+v", journal.entries)
	}
}
