package imageutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 2048
	jpegQuality         = 85
)

// Resize уменьшает изображение, если одна из сторон больше maxDimension,
// сохраняя пропорции. Возвращает новые данные и их MIME-тип; изображение
// в пределах лимита возвращается без изменений.
func Resize(data []byte, mimeType string, maxDimension int) ([]byte, string, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= maxDimension && cfg.Height <= maxDimension {
		return data, mimeType, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	width, height := scaledSize(cfg.Width, cfg.Height, maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	outputType := "image/jpeg"
	if mimeType == "image/png" || mimeType == "image/gif" {
		outputType = "image/png"
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), outputType, nil
}

func scaledSize(width, height, maxDimension int) (int, int) {
	if width >= height {
		h := int(float64(height) * float64(maxDimension) / float64(width))
		return maxDimension, max(h, 1)
	}
	w := int(float64(width) * float64(maxDimension) / float64(height))
	return max(w, 1), maxDimension
}
