package processing

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/menta2k/image-editor/pkg/types"
)

// createTestImage creates a simple opaque test image
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8((x * 255) / width), uint8((y * 255) / height), 128, 255})
		}
	}
	return img
}

func fillImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func mustPayload(t *testing.T, p *Processor, img image.Image) types.Payload {
	t.Helper()
	payload, err := p.EncodePayload(img, Encoding{Format: "png"})
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}
	return payload
}

func mustDecode(t *testing.T, p *Processor, payload types.Payload) *image.NRGBA {
	t.Helper()
	img, _, err := p.DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	out := image.NewNRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func matchingMetrics(w, h float64) types.DisplayMetrics {
	return types.DisplayMetrics{
		Container: types.Size{Width: w, Height: h},
		Displayed: types.Size{Width: w, Height: h},
		Natural:   types.Size{Width: w, Height: h},
	}
}

func TestNewProcessor(t *testing.T) {
	p := NewProcessor()
	if p.config.LossyFormat != "jpeg" {
		t.Errorf("Expected lossy format jpeg, got %s", p.config.LossyFormat)
	}
	if p.config.LossyQuality != 92 {
		t.Errorf("Expected quality 92, got %d", p.config.LossyQuality)
	}
	if p.config.LosslessFormat != "png" {
		t.Errorf("Expected lossless format png, got %s", p.config.LosslessFormat)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	p := NewProcessor()
	payload := mustPayload(t, p, createTestImage(40, 30))

	if payload.MIMEType() != "image/png" {
		t.Errorf("Expected image/png payload, got %s", payload.MIMEType())
	}

	img, format, err := p.DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if format != "png" {
		t.Errorf("Expected format png, got %s", format)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("Expected 40x30, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	p := NewProcessor()

	if _, _, err := p.DecodePayload("hello"); !errors.Is(err, ErrNotDataURL) {
		t.Errorf("Expected ErrNotDataURL, got %v", err)
	}
	if _, _, err := p.DecodePayload("data:image/png;base64,aGVsbG8="); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	p := NewProcessor()
	if _, err := p.EncodePayload(createTestImage(4, 4), Encoding{Format: "tga"}); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Errorf("Expected ErrUnsupportedEncoding, got %v", err)
	}
}

func TestAdjustIdentity(t *testing.T) {
	src := createTestImage(32, 16)
	out := Adjust(src, types.DefaultFilters())

	for i := range src.Pix {
		if src.Pix[i] != out.Pix[i] {
			t.Fatalf("Identity filters changed byte %d: %d -> %d", i, src.Pix[i], out.Pix[i])
		}
	}
}

func TestAdjustBrightness(t *testing.T) {
	src := fillImage(4, 4, color.NRGBA{100, 100, 100, 255})
	out := Adjust(src, types.FilterParams{Brightness: 150, Contrast: 100, Saturation: 100})

	c := out.NRGBAAt(0, 0)
	if c.R != 150 || c.G != 150 || c.B != 150 || c.A != 255 {
		t.Errorf("Expected (150,150,150,255), got %v", c)
	}

	dark := Adjust(src, types.FilterParams{Brightness: 0, Contrast: 100, Saturation: 100})
	if c := dark.NRGBAAt(1, 1); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("Expected black at brightness 0, got %v", c)
	}
}

func TestAdjustContrastAndSaturation(t *testing.T) {
	src := fillImage(2, 2, color.NRGBA{200, 50, 50, 255})

	flat := Adjust(src, types.FilterParams{Brightness: 100, Contrast: 0, Saturation: 100})
	if c := flat.NRGBAAt(0, 0); c.R != 128 || c.G != 128 || c.B != 128 {
		t.Errorf("Expected mid grey at contrast 0, got %v", c)
	}

	grey := Adjust(src, types.FilterParams{Brightness: 100, Contrast: 100, Saturation: 0})
	c := grey.NRGBAAt(0, 0)
	if c.R != c.G || c.G != c.B {
		t.Errorf("Expected neutral grey at saturation 0, got %v", c)
	}
}

func TestApplyFiltersIdentityIsVisuallyEqual(t *testing.T) {
	p := NewProcessor()
	src := fillImage(32, 32, color.NRGBA{90, 140, 200, 255})
	payload := mustPayload(t, p, src)

	out, err := p.ApplyFilters(payload, types.DefaultFilters())
	if err != nil {
		t.Fatalf("ApplyFilters failed: %v", err)
	}
	if out.MIMEType() != "image/jpeg" {
		t.Errorf("Expected jpeg output, got %s", out.MIMEType())
	}

	got := mustDecode(t, p, out).NRGBAAt(16, 16)
	if absDiff(got.R, 90) > 6 || absDiff(got.G, 140) > 6 || absDiff(got.B, 200) > 6 {
		t.Errorf("Identity filter drifted too far: %v", got)
	}
}

func TestApplyFiltersRejectsOutOfRange(t *testing.T) {
	p := NewProcessor()
	payload := mustPayload(t, p, createTestImage(4, 4))

	_, err := p.ApplyFilters(payload, types.FilterParams{Brightness: 250, Contrast: 100, Saturation: 100})
	if !errors.Is(err, types.ErrFilterRange) {
		t.Errorf("Expected ErrFilterRange, got %v", err)
	}
}

func TestMaskBackground(t *testing.T) {
	img := fillImage(3, 1, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(0, 0, color.NRGBA{241, 241, 241, 255})
	img.SetNRGBA(1, 0, color.NRGBA{240, 255, 255, 255})
	img.SetNRGBA(2, 0, color.NRGBA{100, 100, 100, 255})

	out := MaskBackground(img, DefaultBackgroundThreshold)

	if a := out.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("Expected near-white pixel cleared, alpha %d", a)
	}
	if a := out.NRGBAAt(1, 0).A; a != 255 {
		t.Errorf("A channel equal to the threshold must not clear, alpha %d", a)
	}
	if a := out.NRGBAAt(2, 0).A; a != 255 {
		t.Errorf("Expected dark pixel kept, alpha %d", a)
	}
	if img.NRGBAAt(0, 0).A != 255 {
		t.Error("MaskBackground must not modify its input")
	}
}

func TestRemoveBackgroundCorners(t *testing.T) {
	p := NewProcessor()
	img := fillImage(10, 10, color.NRGBA{30, 60, 90, 255})
	img.SetNRGBA(0, 0, color.NRGBA{245, 245, 245, 255})
	img.SetNRGBA(9, 9, color.NRGBA{100, 100, 100, 255})

	out, err := p.RemoveBackground(mustPayload(t, p, img), DefaultBackgroundThreshold)
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}
	if out.MIMEType() != "image/png" {
		t.Errorf("Expected lossless png output, got %s", out.MIMEType())
	}

	res := mustDecode(t, p, out)
	if a := res.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("Expected white corner alpha 0, got %d", a)
	}
	if a := res.NRGBAAt(9, 9).A; a != 255 {
		t.Errorf("Expected grey corner alpha 255, got %d", a)
	}
}

func TestRemoveBackgroundIdempotent(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(16, 16)
	for x := 0; x < 16; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{250, 250, 250, 255})
	}

	once, err := p.RemoveBackground(mustPayload(t, p, img), DefaultBackgroundThreshold)
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}
	twice, err := p.RemoveBackground(once, DefaultBackgroundThreshold)
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}

	a, b := mustDecode(t, p, once), mustDecode(t, p, twice)
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("Second pass changed byte %d: %d -> %d", i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestRemoveBackgroundKeepsOpaqueDarkImage(t *testing.T) {
	img := createTestImage(20, 20) // blue channel 128, never near-white
	out := MaskBackground(img, DefaultBackgroundThreshold)
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 255 {
			t.Fatalf("Expected alpha unchanged, got %d at %d", out.Pix[i], i)
		}
	}
}

func TestCropToMatchingScale(t *testing.T) {
	p := NewProcessor()
	payload := mustPayload(t, p, createTestImage(200, 100))

	out, err := p.CropTo(payload, types.Rect{X: 50, Y: 25, Width: 100, Height: 50}, matchingMetrics(200, 100))
	if err != nil {
		t.Fatalf("CropTo failed: %v", err)
	}

	img, _, err := p.DecodePayload(out)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("Expected 100x50, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestNaturalCropRectScalesAndOffsets(t *testing.T) {
	// 800x400 image shown at 400x200, centred in a 600x300 container
	m := types.DisplayMetrics{
		Container: types.Size{Width: 600, Height: 300},
		Displayed: types.Size{Width: 400, Height: 200},
		Natural:   types.Size{Width: 800, Height: 400},
	}

	r, err := NaturalCropRect(types.Rect{X: 150, Y: 100, Width: 100, Height: 50}, m)
	if err != nil {
		t.Fatalf("NaturalCropRect failed: %v", err)
	}
	expected := image.Rect(100, 100, 300, 200)
	if r != expected {
		t.Errorf("Expected %v, got %v", expected, r)
	}

	// a rect starting left of the image clamps its origin to the image edge
	r, err = NaturalCropRect(types.Rect{X: 50, Y: 0, Width: 100, Height: 50}, m)
	if err != nil {
		t.Fatalf("NaturalCropRect failed: %v", err)
	}
	if r.Min != (image.Point{0, 0}) {
		t.Errorf("Expected origin clamped to 0,0, got %v", r.Min)
	}
}

func TestCropOutOfBounds(t *testing.T) {
	m := matchingMetrics(200, 100)
	tests := []types.Rect{
		{X: 200, Y: 10, Width: 10, Height: 10},
		{X: 10, Y: 100, Width: 10, Height: 10},
		{X: 250, Y: 150, Width: 10, Height: 10},
	}
	for _, r := range tests {
		if _, err := NaturalCropRect(r, m); !errors.Is(err, ErrCropOutOfBounds) {
			t.Errorf("Expected ErrCropOutOfBounds for %v, got %v", r, err)
		}
	}

	if _, err := NaturalCropRect(types.Rect{X: 10, Y: 10}, m); !errors.Is(err, ErrEmptyCrop) {
		t.Errorf("Expected ErrEmptyCrop, got %v", err)
	}
}

func TestCropSurfacePadsTransparent(t *testing.T) {
	img := fillImage(10, 10, color.NRGBA{10, 20, 30, 255})
	out := CropSurface(img, image.Rect(5, 5, 15, 15))

	if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 10 {
		t.Fatalf("Expected 10x10 surface, got %v", out.Bounds())
	}
	if c := out.NRGBAAt(0, 0); c.A != 255 || c.R != 10 {
		t.Errorf("Expected copied pixel, got %v", c)
	}
	if c := out.NRGBAAt(9, 9); c.A != 0 {
		t.Errorf("Expected transparent padding, got %v", c)
	}
}

func TestWebPEncoding(t *testing.T) {
	p := NewProcessorWithConfig(Config{LossyFormat: "webp", LossyQuality: 80, LosslessFormat: "webp"})
	payload := mustPayload(t, p, createTestImage(16, 16))

	out, err := p.RemoveBackground(payload, DefaultBackgroundThreshold)
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}
	if out.MIMEType() != "image/webp" {
		t.Errorf("Expected webp payload, got %s", out.MIMEType())
	}
	img, _, err := p.DecodePayload(out)
	if err != nil {
		t.Fatalf("DecodePayload of webp failed: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("Expected width 16, got %d", img.Bounds().Dx())
	}
}

func TestCropPreview(t *testing.T) {
	m := types.Viewport{Width: 300, MinHeight: 200, MaxImageWidth: 300, MaxImageHeight: 200}.Layout(100, 50)
	preview := CropPreview(createTestImage(100, 50), types.Rect{X: 120, Y: 90, Width: 40, Height: 20}, m)

	if preview.Bounds().Dx() != 300 || preview.Bounds().Dy() != 200 {
		t.Fatalf("Expected container-sized preview, got %v", preview.Bounds())
	}
	if c := preview.NRGBAAt(120, 90); c != frameColor {
		t.Errorf("Expected frame colour at selection corner, got %v", c)
	}
	if c := preview.NRGBAAt(5, 5); c.R > 0x80 {
		t.Errorf("Expected dimmed backdrop outside the selection, got %v", c)
	}
}

func TestSaveImage(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "out.png")
	if err := p.SaveImage(createTestImage(8, 8), path, Encoding{Format: "png"}); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func BenchmarkAdjust(b *testing.B) {
	img := createTestImage(1920, 1080)
	params := types.FilterParams{Brightness: 120, Contrast: 90, Saturation: 150}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Adjust(img, params)
	}
}

func BenchmarkMaskBackground(b *testing.B) {
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MaskBackground(img, DefaultBackgroundThreshold)
	}
}
