package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/ai"
	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/config"
	"example.com/receipt-tax-tracker/backend/internal/imageutil"
	"example.com/receipt-tax-tracker/backend/internal/notifications"
	"example.com/receipt-tax-tracker/backend/internal/repository"
	"example.com/receipt-tax-tracker/backend/internal/storage"
)

const aiImageField = "image"

// ExtractionJournal сохраняет журнал обращений к распознаванию.
type ExtractionJournal interface {
	RecordExtraction(ctx context.Context, entry repository.ExtractionLog) error
}

type uploadedImage struct {
	Filename string
	MimeType string
	Data     []byte
}

type ReceiptAIHandler struct {
	Receipts  ReceiptStore
	Images    storage.ImageStore
	Extractor ai.Extractor
	Journal   ExtractionJournal
	Hub       *notifications.Hub
	Upload    config.UploadConfig
	Logger    *slog.Logger
}

// NewReceiptAIHandler создает обработчик распознавания чеков.
func NewReceiptAIHandler(receipts ReceiptStore, images storage.ImageStore, extractor ai.Extractor, journal ExtractionJournal, hub *notifications.Hub, upload config.UploadConfig, logger *slog.Logger) *ReceiptAIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptAIHandler{
		Receipts:  receipts,
		Images:    images,
		Extractor: extractor,
		Journal:   journal,
		Hub:       hub,
		Upload:    upload,
		Logger:    logger,
	}
}

// ProcessUpload распознает загруженное изображение без сохранения чека.
func (h *ReceiptAIHandler) ProcessUpload(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	upload, errs, err := readUpload(c, aiImageField, h.Upload)
	if err != nil {
		return internalError(c, h.Logger, "read upload", err)
	}
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}
	if upload == nil {
		errs := FieldErrors{}
		errs.Add(aiImageField, "The image field is required.")
		return unprocessable(c, errs)
	}

	return h.extract(c, userID, nil, *upload)
}

// ProcessReceipt распознает первое сохраненное изображение чека.
func (h *ReceiptAIHandler) ProcessReceipt(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid receipt id")
	}

	ctx := c.Request().Context()
	receipt, err := h.Receipts.GetByID(ctx, receiptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "receipt not found")
		}
		return internalError(c, h.Logger, "get receipt", err)
	}
	if receipt.UserID != userID {
		return forbidden(c)
	}

	images, err := h.Receipts.ListImages(ctx, receipt.ID)
	if err != nil {
		return internalError(c, h.Logger, "list receipt images", err)
	}
	if len(images) == 0 {
		errs := FieldErrors{}
		errs.Add(receiptImageField, "The receipt has no image to process.")
		return unprocessable(c, errs)
	}

	first := images[0]
	data, err := h.Images.Get(ctx, first.ImagePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return notFound(c, "receipt image not found")
		}
		return internalError(c, h.Logger, "load receipt image", err)
	}

	return h.extract(c, userID, &receipt.ID, uploadedImage{
		Filename: first.OriginalFilename,
		MimeType: first.MimeType,
		Data:     data,
	})
}

func (h *ReceiptAIHandler) extract(c echo.Context, userID uuid.UUID, receiptID *uuid.UUID, upload uploadedImage) error {
	ctx := c.Request().Context()
	started := time.Now()
	extraction, trace, err := h.Extractor.ExtractReceipt(ctx, ai.Image{
		Filename: upload.Filename,
		MimeType: upload.MimeType,
		Data:     upload.Data,
	})
	h.record(ctx, repository.ExtractionLog{
		UserID:    userID,
		ReceiptID: receiptID,
		Provider:  trace.Provider,
		Model:     trace.Model,
		Prompt:    trace.Prompt,
		Raw:       trace.Raw,
		Duration:  time.Since(started),
		Err:       err,
	}, extraction)
	if err != nil {
		h.Logger.ErrorContext(ctx, "receipt extraction failed",
			slog.String("error", err.Error()),
			slog.String("filename", upload.Filename),
			slog.String("provider", trace.Provider),
		)
		return failure(c, "Failed to process receipt with AI")
	}

	h.Hub.PublishReceiptScanned(userID, receiptID, extraction.VendorName)

	return c.JSON(http.StatusOK, extraction)
}

func (h *ReceiptAIHandler) record(ctx context.Context, entry repository.ExtractionLog, extraction ai.Extraction) {
	if h.Journal == nil {
		return
	}
	if entry.Err == nil {
		entry.Result, _ = json.Marshal(extraction)
	}

	if err := h.Journal.RecordExtraction(ctx, entry); err != nil {
		h.Logger.WarnContext(ctx, "failed to record extraction", slog.String("error", err.Error()))
	}
}

// readUpload читает файл из multipart-поля, проверяет сигнатуру и размер
// и уменьшает слишком большие изображения. Отсутствие файла не ошибка.
func readUpload(c echo.Context, field string, cfg config.UploadConfig) (*uploadedImage, FieldErrors, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		errs := FieldErrors{}
		errs.Add(field, fmt.Sprintf("The %s failed to upload.", field))
		return nil, errs, nil
	}

	src, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()

	reader := io.Reader(src)
	if cfg.MaxImageBytes > 0 {
		reader = io.LimitReader(src, cfg.MaxImageBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, err
	}

	detected, err := imageutil.Validate(data, cfg.MaxImageBytes)
	if err != nil {
		errs := FieldErrors{}
		switch {
		case errors.Is(err, imageutil.ErrImageTooLarge):
			errs.Add(field, fmt.Sprintf("The %s field must not be greater than %d kilobytes.", field, cfg.MaxImageBytes/1024))
		default:
			errs.Add(field, fmt.Sprintf("The %s field must be an image.", field))
		}
		return nil, errs, nil
	}

	resized, mimeType, err := imageutil.Resize(data, detected.MimeType, cfg.MaxImageDimension)
	if err != nil {
		errs := FieldErrors{}
		errs.Add(field, fmt.Sprintf("The %s field must be an image.", field))
		return nil, errs, nil
	}

	return &uploadedImage{
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     resized,
	}, nil, nil
}

func (h *ReceiptHandler) readUpload(c echo.Context, field string) (*uploadedImage, FieldErrors, error) {
	return readUpload(c, field, h.Upload)
}

// putImage сохраняет файл до транзакции; при ее откате файл удаляет discardImage.
func (h *ReceiptHandler) putImage(ctx context.Context, userID uuid.UUID, upload *uploadedImage) (*repository.ImageInput, error) {
	key := storage.ImageKey(userID, imageutil.Extension(upload.MimeType))
	if err := h.Images.Put(ctx, key, upload.Data, upload.MimeType); err != nil {
		return nil, err
	}

	return &repository.ImageInput{
		Path:             key,
		OriginalFilename: upload.Filename,
		MimeType:         upload.MimeType,
		FileSize:         int64(len(upload.Data)),
	}, nil
}

func (h *ReceiptHandler) discardImage(ctx context.Context, image *repository.ImageInput) {
	if image == nil {
		return
	}
	if err := h.Images.Delete(context.WithoutCancel(ctx), image.Path); err != nil {
		h.Logger.WarnContext(ctx, "failed to remove orphaned receipt image",
			slog.String("error", err.Error()),
			slog.String("path", image.Path),
		)
	}
}
