package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/repository"
	"example.com/receipt-tax-tracker/backend/internal/storage"
	"example.com/receipt-tax-tracker/backend/internal/summary"
)

func newTestContext(method, target string, body io.Reader, contentType string, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != uuid.Nil {
		c.Set(auth.ContextUserIDKey, userID)
	}
	return c, rec
}

func withID(c echo.Context, id uuid.UUID) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	return c
}

type fakeReceiptStore struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]models.Receipt
	images   map[uuid.UUID][]models.ReceiptImage

	created     []repository.ReceiptInput
	createdFrom []repository.NamedReceiptInput
	updated     []repository.ReceiptInput
	deleted     []uuid.UUID
	createErr   error
	deleteErr   error

	listTotal  int
	lastLimit  int
	lastOffset int
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{
		receipts: make(map[uuid.UUID]models.Receipt),
		images:   make(map[uuid.UUID][]models.ReceiptImage),
	}
}

func (f *fakeReceiptStore) add(userID uuid.UUID) models.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()

	receipt := models.Receipt{
		ID:          uuid.New(),
		UserID:      userID,
		ReceiptDate: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Currency:    models.DefaultCurrency,
	}
	f.receipts[receipt.ID] = receipt
	return receipt
}

func (f *fakeReceiptStore) Create(ctx context.Context, userID uuid.UUID, input repository.ReceiptInput) (models.Receipt, error) {
	f.mu.Lock()
	f.created = append(f.created, input)
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return models.Receipt{}, err
	}
	return f.add(userID), nil
}

func (f *fakeReceiptStore) CreateFromNamed(ctx context.Context, userID uuid.UUID, input repository.NamedReceiptInput) (models.Receipt, error) {
	f.mu.Lock()
	f.createdFrom = append(f.createdFrom, input)
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return models.Receipt{}, err
	}
	return f.add(userID), nil
}

func (f *fakeReceiptStore) Update(ctx context.Context, receiptID uuid.UUID, input repository.ReceiptInput) (models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updated = append(f.updated, input)
	receipt, ok := f.receipts[receiptID]
	if !ok {
		return models.Receipt{}, repository.ErrNotFound
	}
	return receipt, nil
}

func (f *fakeReceiptStore) Delete(ctx context.Context, receiptID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.receipts[receiptID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.receipts, receiptID)
	f.deleted = append(f.deleted, receiptID)
	return nil
}

func (f *fakeReceiptStore) GetByID(ctx context.Context, receiptID uuid.UUID) (models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	receipt, ok := f.receipts[receiptID]
	if !ok {
		return models.Receipt{}, repository.ErrNotFound
	}
	return receipt, nil
}

func (f *fakeReceiptStore) GetDetail(ctx context.Context, receiptID uuid.UUID) (repository.ReceiptDetail, error) {
	receipt, err := f.GetByID(ctx, receiptID)
	if err != nil {
		return repository.ReceiptDetail{}, err
	}
	images, _ := f.ListImages(ctx, receiptID)
	return repository.ReceiptDetail{Receipt: receipt, Items: []repository.ReceiptItemDetail{}, Images: images}, nil
}

func (f *fakeReceiptStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]repository.ReceiptListEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastLimit = limit
	f.lastOffset = offset
	entries := make([]repository.ReceiptListEntry, 0)
	for _, receipt := range f.receipts {
		if receipt.UserID == userID {
			entries = append(entries, repository.ReceiptListEntry{Receipt: receipt})
		}
	}
	return entries, f.listTotal, nil
}

func (f *fakeReceiptStore) ListImages(ctx context.Context, receiptID uuid.UUID) ([]models.ReceiptImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.ReceiptImage(nil), f.images[receiptID]...), nil
}

func (f *fakeReceiptStore) ListForExport(ctx context.Context, userID uuid.UUID) ([]repository.ReceiptDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	details := make([]repository.ReceiptDetail, 0)
	for _, receipt := range f.receipts {
		if receipt.UserID == userID {
			details = append(details, repository.ReceiptDetail{Receipt: receipt})
		}
	}
	return details, nil
}

func (f *fakeReceiptStore) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]repository.ReceiptListEntry, error) {
	entries, _, err := f.ListByUser(ctx, userID, limit, 0)
	return entries, err
}

type fakeImageStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: make(map[string][]byte)}
}

func (f *fakeImageStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[key] = data
	return nil
}

func (f *fakeImageStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeImageStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeImageStore) URL(key string) string {
	return "/storage/" + key
}

type fakeSummary struct {
	mu         sync.Mutex
	deductions summary.DeductibilitySummary
	monthly    summary.MonthlySpending
	err        error
	gotNow     time.Time
}

func (f *fakeSummary) DeductibilitySummary(ctx context.Context, userID uuid.UUID) (summary.DeductibilitySummary, error) {
	return f.deductions, f.err
}

func (f *fakeSummary) MonthlySpending(ctx context.Context, userID uuid.UUID, now time.Time) (summary.MonthlySpending, error) {
	f.mu.Lock()
	f.gotNow = now
	f.mu.Unlock()
	return f.monthly, f.err
}
