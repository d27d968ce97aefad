package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/config"
	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/notifications"
	"example.com/receipt-tax-tracker/backend/internal/repository"
	"example.com/receipt-tax-tracker/backend/internal/storage"
)

const (
	receiptsPerPage   = 15
	payloadField      = "payload"
	receiptImageField = "receipt_image"
)

// ReceiptStore хранит чеки и их позиции.
type ReceiptStore interface {
	Create(ctx context.Context, userID uuid.UUID, input repository.ReceiptInput) (models.Receipt, error)
	CreateFromNamed(ctx context.Context, userID uuid.UUID, input repository.NamedReceiptInput) (models.Receipt, error)
	Update(ctx context.Context, receiptID uuid.UUID, input repository.ReceiptInput) (models.Receipt, error)
	Delete(ctx context.Context, receiptID uuid.UUID) error
	GetByID(ctx context.Context, receiptID uuid.UUID) (models.Receipt, error)
	GetDetail(ctx context.Context, receiptID uuid.UUID) (repository.ReceiptDetail, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]repository.ReceiptListEntry, int, error)
	ListImages(ctx context.Context, receiptID uuid.UUID) ([]models.ReceiptImage, error)
	ListForExport(ctx context.Context, userID uuid.UUID) ([]repository.ReceiptDetail, error)
}

// ReferenceStore отдает справочники для формы чека.
type ReferenceStore interface {
	DeductibilityTypes(ctx context.Context) ([]models.DeductibilityType, error)
	Vendors(ctx context.Context) ([]models.Vendor, error)
	Categories(ctx context.Context, userID uuid.UUID) ([]models.ExpenseCategory, error)
	PaymentMethods(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error)
}

type ReceiptHandler struct {
	Receipts   ReceiptStore
	References ReferenceStore
	Images     storage.ImageStore
	Hub        *notifications.Hub
	Upload     config.UploadConfig
	Logger     *slog.Logger
}

// NewReceiptHandler создает обработчик чеков.
func NewReceiptHandler(receipts ReceiptStore, references ReferenceStore, images storage.ImageStore, hub *notifications.Hub, upload config.UploadConfig, logger *slog.Logger) *ReceiptHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptHandler{
		Receipts:   receipts,
		References: references,
		Images:     images,
		Hub:        hub,
		Upload:     upload,
		Logger:     logger,
	}
}

// Index возвращает страницу чеков пользователя.
func (h *ReceiptHandler) Index(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	page, err := parsePage(c.QueryParam("page"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	entries, total, err := h.Receipts.ListByUser(c.Request().Context(), userID, receiptsPerPage, (page-1)*receiptsPerPage)
	if err != nil {
		return internalError(c, h.Logger, "list receipts", err)
	}

	data := make([]ReceiptResponse, 0, len(entries))
	for _, entry := range entries {
		data = append(data, toReceiptResponse(entry))
	}

	return c.JSON(http.StatusOK, ReceiptPageResponse{
		Data:        data,
		CurrentPage: page,
		PerPage:     receiptsPerPage,
		Total:       total,
		LastPage:    lastPage(total, receiptsPerPage),
	})
}

// Create возвращает справочники для формы нового чека.
func (h *ReceiptHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	form, err := h.formData(c.Request().Context(), userID)
	if err != nil {
		return internalError(c, h.Logger, "receipt form", err)
	}

	return c.JSON(http.StatusOK, form)
}

// Edit возвращает чек и справочники для формы редактирования.
func (h *ReceiptHandler) Edit(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	receipt, allowed, err := h.ownedReceipt(c, userID)
	if !allowed {
		return err
	}

	detail, err := h.Receipts.GetDetail(c.Request().Context(), receipt.ID)
	if err != nil {
		return internalError(c, h.Logger, "receipt detail", err)
	}

	form, err := h.formData(c.Request().Context(), userID)
	if err != nil {
		return internalError(c, h.Logger, "receipt form", err)
	}
	response := toReceiptDetailResponse(detail, h.Images)
	form.Receipt = &response

	return c.JSON(http.StatusOK, form)
}

// Store создает чек. Multipart-запрос несет JSON в поле payload и
// необязательный файл receipt_image; JSON-тело разбирается как результат
// распознавания.
func (h *ReceiptHandler) Store(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if !isMultipart(c) {
		return h.storeFromJSON(c, userID)
	}

	raw := []byte(c.FormValue(payloadField))
	input, errs, err := decodeReceiptRequest(c, raw)
	if err != nil {
		return internalError(c, h.Logger, "validate receipt", err)
	}

	upload, uploadErrs, err := h.readUpload(c, receiptImageField)
	if err != nil {
		return internalError(c, h.Logger, "read receipt image", err)
	}
	errs = mergeFieldErrors(errs, uploadErrs)
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}

	ctx := c.Request().Context()
	if upload != nil {
		image, err := h.putImage(ctx, userID, upload)
		if err != nil {
			return internalError(c, h.Logger, "store receipt image", err)
		}
		input.Image = image
	}

	receipt, err := h.Receipts.Create(ctx, userID, input)
	if err != nil {
		h.discardImage(ctx, input.Image)
		return h.writeError(c, "create receipt", err)
	}

	h.Hub.PublishReceiptChange(userID, receipt.ID, notifications.ActionCreated)
	return h.respondDetail(c, http.StatusCreated, receipt.ID)
}

func (h *ReceiptHandler) storeFromJSON(c echo.Context, userID uuid.UUID) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "invalid request body")
	}

	input, errs, err := decodeExtractedReceipt(c, raw)
	if err != nil {
		return internalError(c, h.Logger, "validate receipt", err)
	}
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}

	receipt, err := h.Receipts.CreateFromNamed(c.Request().Context(), userID, input)
	if err != nil {
		return h.writeError(c, "create receipt from extraction", err)
	}

	h.Hub.PublishReceiptChange(userID, receipt.ID, notifications.ActionCreated)
	return h.respondDetail(c, http.StatusCreated, receipt.ID)
}

// Show возвращает чек с позициями и изображениями.
func (h *ReceiptHandler) Show(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	receipt, allowed, err := h.ownedReceipt(c, userID)
	if !allowed {
		return err
	}

	return h.respondDetail(c, http.StatusOK, receipt.ID)
}

// Update заменяет поля чека и синхронизирует позиции по id.
func (h *ReceiptHandler) Update(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	receipt, allowed, err := h.ownedReceipt(c, userID)
	if !allowed {
		return err
	}

	var (
		raw    []byte
		upload *uploadedImage
		errs   FieldErrors
	)
	if isMultipart(c) {
		raw = []byte(c.FormValue(payloadField))
		upload, errs, err = h.readUpload(c, receiptImageField)
		if err != nil {
			return internalError(c, h.Logger, "read receipt image", err)
		}
	} else {
		raw, err = io.ReadAll(c.Request().Body)
		if err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	input, requestErrs, err := decodeReceiptRequest(c, raw)
	if err != nil {
		return internalError(c, h.Logger, "validate receipt", err)
	}
	errs = mergeFieldErrors(requestErrs, errs)
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}

	ctx := c.Request().Context()
	if upload != nil {
		image, err := h.putImage(ctx, userID, upload)
		if err != nil {
			return internalError(c, h.Logger, "store receipt image", err)
		}
		input.Image = image
	}

	if _, err := h.Receipts.Update(ctx, receipt.ID, input); err != nil {
		h.discardImage(ctx, input.Image)
		return h.writeError(c, "update receipt", err)
	}

	h.Hub.PublishReceiptChange(userID, receipt.ID, notifications.ActionUpdated)
	return h.respondDetail(c, http.StatusOK, receipt.ID)
}

// Destroy удаляет чек, затем файлы его изображений. Ошибка удаления
// файла только пишется в лог.
func (h *ReceiptHandler) Destroy(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	receipt, allowed, err := h.ownedReceipt(c, userID)
	if !allowed {
		return err
	}

	ctx := c.Request().Context()
	images, err := h.Receipts.ListImages(ctx, receipt.ID)
	if err != nil {
		return internalError(c, h.Logger, "list receipt images", err)
	}

	if err := h.Receipts.Delete(ctx, receipt.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "receipt not found")
		}
		return internalError(c, h.Logger, "delete receipt", err)
	}

	for _, image := range images {
		if err := h.Images.Delete(ctx, image.ImagePath); err != nil {
			h.Logger.WarnContext(ctx, "failed to delete receipt image",
				slog.String("error", err.Error()),
				slog.String("path", image.ImagePath),
			)
		}
	}

	h.Hub.PublishReceiptChange(userID, receipt.ID, notifications.ActionDeleted)
	return c.NoContent(http.StatusNoContent)
}

// ownedReceipt загружает чек из пути и проверяет владельца. При false
// ответ клиенту уже записан.
func (h *ReceiptHandler) ownedReceipt(c echo.Context, userID uuid.UUID) (models.Receipt, bool, error) {
	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return models.Receipt{}, false, badRequest(c, "invalid receipt id")
	}

	receipt, err := h.Receipts.GetByID(c.Request().Context(), receiptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Receipt{}, false, notFound(c, "receipt not found")
		}
		return models.Receipt{}, false, internalError(c, h.Logger, "get receipt", err)
	}

	if receipt.UserID != userID {
		return models.Receipt{}, false, forbidden(c)
	}

	return receipt, true, nil
}

func (h *ReceiptHandler) respondDetail(c echo.Context, status int, receiptID uuid.UUID) error {
	detail, err := h.Receipts.GetDetail(c.Request().Context(), receiptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "receipt not found")
		}
		return internalError(c, h.Logger, "receipt detail", err)
	}

	return c.JSON(status, toReceiptDetailResponse(detail, h.Images))
}

func (h *ReceiptHandler) formData(ctx context.Context, userID uuid.UUID) (ReceiptFormResponse, error) {
	var form ReceiptFormResponse
	var err error

	if form.Vendors, err = h.References.Vendors(ctx); err != nil {
		return form, err
	}
	if form.Categories, err = h.References.Categories(ctx, userID); err != nil {
		return form, err
	}
	if form.PaymentMethods, err = h.References.PaymentMethods(ctx, userID); err != nil {
		return form, err
	}
	if form.DeductibilityTypes, err = h.References.DeductibilityTypes(ctx); err != nil {
		return form, err
	}

	return form, nil
}

// writeError переводит ошибки записи чека в ответ.
func (h *ReceiptHandler) writeError(c echo.Context, op string, err error) error {
	var refErr *repository.ReferenceError
	switch {
	case errors.As(err, &refErr):
		errs := FieldErrors{}
		errs.Add(refErr.Field, "The selected "+refErr.Field+" is invalid.")
		return unprocessable(c, errs)
	case errors.Is(err, repository.ErrInvalid):
		errs := FieldErrors{}
		errs.Add("items", "The items contain invalid values.")
		return unprocessable(c, errs)
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "receipt not found")
	}
	return internalError(c, h.Logger, op, err)
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

func parsePage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, errors.New("invalid page")
	}
	return page, nil
}

func lastPage(total, perPage int) int {
	if total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

func mergeFieldErrors(a, b FieldErrors) FieldErrors {
	if len(b) == 0 {
		return a
	}
	if a == nil {
		a = FieldErrors{}
	}
	for field, messages := range b {
		a[field] = append(a[field], messages...)
	}
	return a
}
