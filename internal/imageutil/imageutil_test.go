package imageutil

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// TestValidateDetectsPNG проверяет определение типа по сигнатуре.
func TestValidateDetectsPNG(t *testing.T) {
	detected, err := Validate(pngBytes(t, 4, 4), 1024*1024)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if detected.MimeType != "image/png" || detected.Extension != ".png" {
		t.Fatalf("unexpected detection %+v", detected)
	}
}

// TestValidateRejects проверяет отказ для пустых, больших и не-изображений.
func TestValidateRejects(t *testing.T) {
	if _, err := Validate(nil, 10); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}

	if _, err := Validate(pngBytes(t, 4, 4), 10); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}

	if _, err := Validate([]byte("%PDF-1.4 not an image"), 1024); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

// TestResizeKeepsSmallImage проверяет, что маленькое изображение не меняется.
func TestResizeKeepsSmallImage(t *testing.T) {
	data := pngBytes(t, 20, 10)

	out, mimeType, err := Resize(data, "image/png", 100)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !bytes.Equal(out, data) || mimeType != "image/png" {
		t.Fatal("expected original image back")
	}
}

// TestResizeScalesDown проверяет уменьшение с сохранением пропорций.
func TestResizeScalesDown(t *testing.T) {
	out, mimeType, err := Resize(pngBytes(t, 400, 100), "image/png", 200)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mimeType != "image/png" {
		t.Fatalf("expected png output, got %s", mimeType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode resized: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 50 {
		t.Fatalf("expected 200x50, got %dx%d", cfg.Width, cfg.Height)
	}
}

// TestScaledSizePortrait проверяет расчет размеров для вертикального снимка.
func TestScaledSizePortrait(t *testing.T) {
	w, h := scaledSize(1000, 4000, 2000)
	if w != 500 || h != 2000 {
		t.Fatalf("expected 500x2000, got %dx%d", w, h)
	}
}
