package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/menta2k/image-editor/pkg/types"
)

// createTestImage creates a white image with a black square subject
func createTestImage(width, height int, subject image.Rectangle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (image.Point{X: x, Y: y}).In(subject) {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	return img
}

func TestNew(t *testing.T) {
	detector := New()
	if detector == nil {
		t.Fatal("New() returned nil")
	}
	if detector.config.AnalysisSize != 128 {
		t.Errorf("Expected analysis size 128, got %d", detector.config.AnalysisSize)
	}
}

func TestNewWithConfig(t *testing.T) {
	detector := NewWithConfig(DetectionConfig{SaliencyCutoff: 0.7})
	if detector.config.SaliencyCutoff != 0.7 {
		t.Errorf("Expected cutoff 0.7, got %f", detector.config.SaliencyCutoff)
	}
	if detector.config.AnalysisSize != 128 {
		t.Errorf("Expected analysis size defaulted to 128, got %d", detector.config.AnalysisSize)
	}
}

func TestLocateSubject(t *testing.T) {
	detector := New()
	img := createTestImage(200, 150, image.Rect(100, 60, 140, 100))

	box, err := detector.LocateSubject(context.Background(), img)
	if err != nil {
		t.Fatalf("LocateSubject failed: %v", err)
	}

	cx, cy := 120.0/200, 80.0/150
	if cx < box.X || cx > box.X+box.W || cy < box.Y || cy > box.Y+box.H {
		t.Errorf("Box %+v does not contain the subject centre (%.2f, %.2f)", box, cx, cy)
	}
	if box.W > 0.5 || box.H > 0.6 {
		t.Errorf("Box %+v is too loose for a small subject", box)
	}
	if box.X > 0.5 || box.X+box.W < 0.7 {
		t.Errorf("Box %+v should span the subject horizontally", box)
	}
}

func TestLocateSubjectFlatImage(t *testing.T) {
	detector := New()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 200
	}

	box, err := detector.LocateSubject(context.Background(), img)
	if err != nil {
		t.Fatalf("LocateSubject failed: %v", err)
	}
	if box != FullFrame {
		t.Errorf("Expected full frame for a flat image, got %+v", box)
	}
}

func TestLocateSubjectTransparent(t *testing.T) {
	detector := New()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))

	box, err := detector.LocateSubject(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if box != FullFrame {
		t.Errorf("Expected full frame for a transparent image, got %+v", box)
	}
}

func TestLocateSubjectErrors(t *testing.T) {
	detector := New()

	if _, err := detector.LocateSubject(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Expected ErrEmptyImage, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := detector.LocateSubject(ctx, createTestImage(20, 20, image.Rect(5, 5, 10, 10))); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSpan(t *testing.T) {
	tests := []struct {
		weights []float64
		tail    float64
		lo, hi  int
	}{
		{[]float64{0, 0, 1, 1, 0}, 0, 2, 3},
		{[]float64{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10}, 0.05, 20, 29},
		{[]float64{5}, 0.05, 0, 0},
	}
	for _, tt := range tests {
		lo, hi := span(tt.weights, tt.tail)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("span(%v, %v) = %d, %d; expected %d, %d", tt.weights, tt.tail, lo, hi, tt.lo, tt.hi)
		}
	}
}

func TestFinishEnforcesMinimumAndBounds(t *testing.T) {
	detector := NewWithConfig(DetectionConfig{MinSubjectRatio: 0.04})

	b := detector.finish(types.Box{X: 0.5, Y: 0.5, W: 0.01, H: 0.01})
	if math.Abs(b.W-0.2) > 1e-9 || math.Abs(b.H-0.2) > 1e-9 {
		t.Errorf("Expected 0.2 minimum side, got %+v", b)
	}

	b = detector.finish(types.Box{X: 0.95, Y: 0.95, W: 0.01, H: 0.01})
	if b.X+b.W > 1+1e-9 || b.Y+b.H > 1+1e-9 {
		t.Errorf("Box %+v leaves the unit square", b)
	}
}

func BenchmarkLocateSubject(b *testing.B) {
	detector := New()
	img := createTestImage(1920, 1080, image.Rect(800, 400, 1100, 700))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.LocateSubject(context.Background(), img)
	}
}
