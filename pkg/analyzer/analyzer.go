package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/menta2k/image-editor/pkg/processing"
)

// ErrUnsupportedFormat is returned when an image decodes but its format is
// not on the allow list.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrTooManyPixels is returned when the declared dimensions exceed the
// pixel budget. The check runs on the header, before any pixel is decoded.
var ErrTooManyPixels = errors.New("image dimensions too large")

// DefaultMaxPixels bounds width*height of accepted images.
const DefaultMaxPixels = 50_000_000

// ImageAnalyzer decodes uploaded images and checks them against the
// accepted formats and minimum size.
type ImageAnalyzer struct {
	config    Config
	processor *processing.Processor
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	// MaxPixels bounds width*height; 0 means DefaultMaxPixels.
	MaxPixels int
}

// DefaultFormats are the formats accepted by default.
var DefaultFormats = []string{"png", "jpeg", "jpg", "gif", "webp", "bmp"}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return NewWithConfig(Config{
		SupportedFormats: DefaultFormats,
		MinImageSize:     1,
		MaxPixels:        DefaultMaxPixels,
	})
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	if config.MaxPixels <= 0 {
		config.MaxPixels = DefaultMaxPixels
	}
	return &ImageAnalyzer{config: config, processor: processing.NewProcessor()}
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return a.LoadImageFromBytes(data)
}

// LoadImageFromBytes decodes and validates encoded image bytes.
func (a *ImageAnalyzer) LoadImageFromBytes(data []byte) (image.Image, string, error) {
	if err := a.CheckDimensions(data); err != nil {
		return nil, "", err
	}

	img, format, err := a.processor.DecodeBytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	if !a.IsFormatSupported(format) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err := a.ValidateImage(img); err != nil {
		return nil, "", err
	}

	return img, format, nil
}

// CheckDimensions reads the image header and rejects images whose pixel
// count exceeds the configured budget. Headers the registered decoders cannot
// read are left to the full decode.
func (a *ImageAnalyzer) CheckDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(a.config.MaxPixels) {
		return fmt.Errorf("%w: %dx%d (maximum %d pixels)", ErrTooManyPixels, cfg.Width, cfg.Height, a.config.MaxPixels)
	}
	return nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// IsFormatSupported reports whether format is on the allow list.
func (a *ImageAnalyzer) IsFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}
