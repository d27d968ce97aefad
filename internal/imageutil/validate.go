package imageutil

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrEmptyImage       = errors.New("image is empty")
	ErrImageTooLarge    = errors.New("image is too large")
	ErrUnsupportedImage = errors.New("file is not a supported image")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Detected описывает тип загруженного файла по сигнатуре.
type Detected struct {
	MimeType  string
	Extension string
}

// Validate проверяет размер и сигнатуру файла. Заголовок Content-Type
// клиента не учитывается.
func Validate(data []byte, maxBytes int64) (Detected, error) {
	if len(data) == 0 {
		return Detected{}, ErrEmptyImage
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Detected{}, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(data), maxBytes)
	}

	detected := mimetype.Detect(data)
	for mime := detected; mime != nil; mime = mime.Parent() {
		if ext, ok := allowedTypes[mime.String()]; ok {
			return Detected{MimeType: mime.String(), Extension: ext}, nil
		}
	}

	return Detected{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, detected.String())
}

// Extension возвращает расширение файла для поддерживаемого MIME-типа.
func Extension(mimeType string) string {
	return allowedTypes[mimeType]
}
