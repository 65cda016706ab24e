package analyzer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	analyzer := New()
	if analyzer == nil {
		t.Fatal("New() returned nil")
	}

	if len(analyzer.config.SupportedFormats) != len(DefaultFormats) {
		t.Errorf("Expected %d default formats, got %d", len(DefaultFormats), len(analyzer.config.SupportedFormats))
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := Config{
		SupportedFormats: []string{"png"},
		MinImageSize:     200,
	}

	analyzer := NewWithConfig(cfg)
	if analyzer == nil {
		t.Fatal("NewWithConfig() returned nil")
	}

	if analyzer.config.MinImageSize != 200 {
		t.Errorf("Expected min size 200, got %d", analyzer.config.MinImageSize)
	}
}

func TestLoadImageFromBytes(t *testing.T) {
	analyzer := New()

	img, format, err := analyzer.LoadImageFromBytes(encodePNG(t, createTestImage(40, 20)))
	if err != nil {
		t.Fatalf("LoadImageFromBytes failed: %v", err)
	}
	if format != "png" {
		t.Errorf("Expected png, got %s", format)
	}
	if img.Bounds().Dx() != 40 {
		t.Errorf("Expected width 40, got %d", img.Bounds().Dx())
	}
}

func TestLoadImageRejectsDisallowedFormat(t *testing.T) {
	analyzer := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 1})

	var buf bytes.Buffer
	if err := gif.Encode(&buf, createTestImage(8, 8), nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}

	_, _, err := analyzer.LoadImageFromBytes(buf.Bytes())
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadImageRejectsGarbage(t *testing.T) {
	analyzer := New()
	if _, _, err := analyzer.LoadImageFromReader(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("Expected decode error for garbage input")
	}
}

func TestGetImageInfo(t *testing.T) {
	analyzer := New()
	img := createTestImage(400, 300)

	info := analyzer.GetImageInfo(img)

	if info.Width != 400 {
		t.Errorf("Expected width 400, got %d", info.Width)
	}

	if info.Height != 300 {
		t.Errorf("Expected height 300, got %d", info.Height)
	}

	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}

	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
}

func TestValidateImage(t *testing.T) {
	analyzer := NewWithConfig(Config{SupportedFormats: DefaultFormats, MinImageSize: 100})

	// Valid image
	validImg := createTestImage(200, 200)
	if err := analyzer.ValidateImage(validImg); err != nil {
		t.Errorf("Valid image should pass validation: %v", err)
	}

	// Invalid image (too small)
	invalidImg := createTestImage(50, 50)
	if err := analyzer.ValidateImage(invalidImg); err == nil {
		t.Error("Small image should fail validation")
	}
}

// declareSize rewrites the IHDR of an encoded PNG so the header claims
// width x height while the pixel data stays tiny.
func declareSize(data []byte, width, height uint32) []byte {
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestPixelBudget(t *testing.T) {
	analyzer := New()
	huge := declareSize(encodePNG(t, createTestImage(1, 1)), 40000, 40000)

	if _, _, err := analyzer.LoadImageFromBytes(huge); !errors.Is(err, ErrTooManyPixels) {
		t.Errorf("Expected ErrTooManyPixels for 40000x40000 header, got %v", err)
	}

	small := NewWithConfig(Config{SupportedFormats: DefaultFormats, MinImageSize: 1, MaxPixels: 100})
	if err := small.CheckDimensions(encodePNG(t, createTestImage(20, 20))); !errors.Is(err, ErrTooManyPixels) {
		t.Errorf("Expected ErrTooManyPixels for 400 pixels, got %v", err)
	}
	if err := small.CheckDimensions(encodePNG(t, createTestImage(10, 10))); err != nil {
		t.Errorf("Expected 10x10 within budget, got %v", err)
	}
	if err := small.CheckDimensions([]byte("not an image")); err != nil {
		t.Errorf("Unreadable headers are left to the decoder, got %v", err)
	}
}

func TestIsFormatSupported(t *testing.T) {
	analyzer := New()

	supportedFormats := []string{"jpg", "jpeg", "png", "JPG", "JPEG", "PNG", "webp", "gif"}
	for _, format := range supportedFormats {
		if !analyzer.IsFormatSupported(format) {
			t.Errorf("Format %s should be supported", format)
		}
	}

	unsupportedFormats := []string{"tiff", "svg", ""}
	for _, format := range unsupportedFormats {
		if analyzer.IsFormatSupported(format) {
			t.Errorf("Format %s should not be supported", format)
		}
	}
}

func BenchmarkGetImageInfo(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.GetImageInfo(img)
	}
}
