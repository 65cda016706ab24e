package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/types"
	"github.com/menta2k/image-editor/pkg/vision"
)

// ErrNoSubject is returned when the model found nothing and no fallback
// locator is configured.
var ErrNoSubject = errors.New("no subject found")

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for a crop box around the main subject
const DefaultPrompt = `You are an image subject locator helping a user crop a photo.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (≤ 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box should tightly include the visually dominant subject (prefer people/vehicles/animals; else the most salient object), with a small margin.
- Ignore plain white or transparent background.
- Description must be brief and factual. Do not guess real identities.
- If no subject is found, return:
  {"primary":{"label":"none","confidence":0.0,"box":{"x":0.0,"y":0.0,"w":1.0,"h":1.0},"cx":0.5,"cy":0.5},"description":"no clear subject","tags":["generic"]}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Locator finds the main subject of an image as a normalized box.
type Locator interface {
	LocateSubject(ctx context.Context, img image.Image) (types.Box, error)
}

// Config holds configuration for model-backed detection
type Config struct {
	Model  string
	Prompt string
	// MaxDimension bounds the longest side of the image sent to the model.
	MaxDimension  int
	Quality       int
	MinConfidence float64
}

// DefaultConfig returns the stock detection settings.
func DefaultConfig() Config {
	return Config{
		Model:         "llava",
		Prompt:        DefaultPrompt,
		MaxDimension:  768,
		Quality:       85,
		MinConfidence: 0.3,
	}
}

// Detector handles image subject detection using vision models, falling
// back to an offline locator when the model is unavailable or unsure.
type Detector struct {
	client    client.VisionClient
	fallback  Locator
	processor *processing.Processor
	config    Config
}

// NewDetector creates a detector with default settings and the saliency
// locator as fallback. A nil client uses the fallback only.
func NewDetector(c client.VisionClient) *Detector {
	return NewDetectorWithConfig(DefaultConfig(), c, vision.New())
}

// NewDetectorWithConfig creates a detector with custom settings
func NewDetectorWithConfig(config Config, c client.VisionClient, fallback Locator) *Detector {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	return &Detector{
		client:    c,
		fallback:  fallback,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// LocateSubject returns a normalized box around the main subject of img.
func (d *Detector) LocateSubject(ctx context.Context, img image.Image) (types.Box, error) {
	if d.client == nil {
		return d.useFallback(ctx, img, ErrNoSubject)
	}

	imgB64, err := d.processor.PrepareImageForModel(img, "jpeg", d.config.MaxDimension, d.config.Quality)
	if err != nil {
		return types.Box{}, fmt.Errorf("failed to prepare image: %w", err)
	}

	result, err := d.DetectSubject(ctx, imgB64)
	if err != nil {
		return d.useFallback(ctx, img, err)
	}

	p := result.Primary
	if strings.EqualFold(p.Label, "none") || p.Confidence < d.config.MinConfidence {
		return d.useFallback(ctx, img, fmt.Errorf("%w (label %q, confidence %.2f)", ErrNoSubject, p.Label, p.Confidence))
	}

	w, h := fitDims(img.Bounds().Dx(), img.Bounds().Dy(), d.config.MaxDimension)
	box := fitUnit(normalizeBox(p.Box, w, h))
	if box.W <= 0 || box.H <= 0 {
		return d.useFallback(ctx, img, fmt.Errorf("%w: empty box", ErrNoSubject))
	}
	return box, nil
}

func (d *Detector) useFallback(ctx context.Context, img image.Image, cause error) (types.Box, error) {
	if d.fallback == nil {
		return types.Box{}, cause
	}
	return d.fallback.LocateSubject(ctx, img)
}

// DetectSubject analyzes an image and detects the primary subject
func (d *Detector) DetectSubject(ctx context.Context, imageB64 string) (*types.AnalysisResult, error) {
	result, err := d.DetectSubjectWithPrompt(ctx, imageB64, d.config.Prompt)
	if err != nil {
		return nil, err
	}
	return validateResult(result), nil
}

// DetectSubjectWithPrompt analyzes an image with a custom prompt
func (d *Detector) DetectSubjectWithPrompt(ctx context.Context, imageB64, prompt string) (*types.AnalysisResult, error) {
	if d.client == nil {
		return nil, ErrNoSubject
	}
	result, err := d.client.AnalyzeImage(ctx, d.config.Model, prompt, imageB64)
	if err != nil {
		return nil, err
	}
	result.Tags = normalizeTags(result.Tags)
	return result, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, imageB64 string) (string, error) {
	if d.client == nil {
		return "", ErrNoSubject
	}
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imageB64)
}

// validateResult marks parser fallbacks as "none" so callers do not crop
// to a made-up box.
func validateResult(result *types.AnalysisResult) *types.AnalysisResult {
	if strings.EqualFold(result.Primary.Label, "none") {
		return result
	}

	fallbackIndicators := []string{"unclear", "parse", "error", "fallback", "non-json", "no json"}
	for _, indicator := range fallbackIndicators {
		if strings.Contains(strings.ToLower(result.Primary.Label), indicator) ||
			strings.Contains(strings.ToLower(result.Description), indicator) {
			result.Primary.Label = "none"
			result.Primary.Confidence = 0.0
			break
		}
	}
	return result
}

// fitDims returns the size of a w x h image after bounding its longest side
// by maxDim.
func fitDims(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, int(math.Round(float64(h) * float64(maxDim) / float64(w)))
	}
	return int(math.Round(float64(w) * float64(maxDim) / float64(h))), maxDim
}

// fitUnit shrinks a normalized box so it stays inside the unit square.
func fitUnit(b types.Box) types.Box {
	b.W = math.Min(b.W, 1-b.X)
	b.H = math.Min(b.H, 1-b.Y)
	return b
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox ensures box coordinates are within [0,1] bounds, converting
// from pixels of an imgW x imgH image when the model answered in pixels.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) {
		return types.Box{
			X: clamp(b.X/float64(imgW), 0, 1),
			Y: clamp(b.Y/float64(imgH), 0, 1),
			W: clamp(b.W/float64(imgW), 0, 1),
			H: clamp(b.H/float64(imgH), 0, 1),
		}
	}

	return types.Box{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
