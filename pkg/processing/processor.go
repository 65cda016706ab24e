package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-editor/pkg/types"
)

// DefaultBackgroundThreshold is the per-channel cutoff above which a pixel
// counts as white background.
const DefaultBackgroundThreshold = 240

// Encoding selects how a surface is written back to a payload.
type Encoding struct {
	Format   string // png, jpeg or webp
	Quality  int    // 1-100, lossy formats only
	Lossless bool   // webp only
}

// Config holds the output encodings used by the processor
type Config struct {
	// LossyFormat is used after filters: jpeg or webp.
	LossyFormat  string
	LossyQuality int
	// LosslessFormat is used after crop and background removal, where
	// alpha must survive: png or webp.
	LosslessFormat string
}

// DefaultConfig matches what a browser canvas produces: JPEG at 0.92 and PNG.
func DefaultConfig() Config {
	return Config{
		LossyFormat:    "jpeg",
		LossyQuality:   92,
		LosslessFormat: "png",
	}
}

// Processor is the drawing surface: it decodes payloads into pixel buffers,
// transforms them and encodes the result into a new payload.
type Processor struct {
	config Config
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{config: DefaultConfig()}
}

// NewProcessorWithConfig creates a processor with custom output encodings
func NewProcessorWithConfig(config Config) *Processor {
	return &Processor{config: config}
}

// Config returns the processor configuration.
func (p *Processor) Config() Config {
	return p.config
}

func (p *Processor) lossy() Encoding {
	return Encoding{Format: p.config.LossyFormat, Quality: p.config.LossyQuality}
}

func (p *Processor) lossless() Encoding {
	return Encoding{Format: p.config.LosslessFormat, Quality: 100, Lossless: true}
}

// DecodePayload decodes a data URL payload and returns the image together
// with the detected format name.
func (p *Processor) DecodePayload(payload types.Payload) (image.Image, string, error) {
	data, err := PayloadBytes(payload)
	if err != nil {
		return nil, "", err
	}
	return p.DecodeBytes(data)
}

// DecodeBytes decodes raw image bytes, honouring EXIF orientation.
func (p *Processor) DecodeBytes(data []byte) (image.Image, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err == nil {
			return img, format, nil
		}
	}

	// Fallback: explicit WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}

	return nil, "", ErrDecode
}

// PayloadBytes extracts the encoded image bytes from a data URL.
func PayloadBytes(payload types.Payload) ([]byte, error) {
	s := string(payload)
	if !strings.HasPrefix(s, "data:") {
		return nil, ErrNotDataURL
	}
	comma := strings.Index(s, ",")
	if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
		return nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return data, nil
}

// NewPayload wraps encoded bytes of the given MIME type in a data URL.
func NewPayload(mime string, data []byte) types.Payload {
	return types.Payload("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// MIMEType returns the media type for a format name.
func MIMEType(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

// Encode writes img to w using enc.
func Encode(w io.Writer, img image.Image, enc Encoding) error {
	switch strings.ToLower(enc.Format) {
	case "png":
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	case "jpg", "jpeg":
		quality := enc.Quality
		if quality <= 0 {
			quality = jpeg.DefaultQuality
		}
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "webp":
		opts := &webp.Options{Lossless: enc.Lossless, Quality: float32(enc.Quality)}
		return webp.Encode(w, img, opts)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc.Format)
	}
}

// EncodePayload encodes img into a new data URL payload.
func (p *Processor) EncodePayload(img image.Image, enc Encoding) (types.Payload, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, enc); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", enc.Format, err)
	}
	return NewPayload(MIMEType(enc.Format), buf.Bytes()), nil
}

// ApplyFilters decodes src, applies the brightness/contrast/saturation chain
// and re-encodes with the lossy encoding.
func (p *Processor) ApplyFilters(src types.Payload, params types.FilterParams) (types.Payload, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	img, _, err := p.DecodePayload(src)
	if err != nil {
		return "", fmt.Errorf("failed to load image for filters: %w", err)
	}
	return p.EncodePayload(Adjust(img, params), p.lossy())
}

// Adjust applies brightness, contrast and saturation, in that order, with
// display-filter semantics: 100 is identity and each step clamps to [0,1].
func Adjust(img image.Image, params types.FilterParams) *image.NRGBA {
	if params.IsIdentity() {
		return imaging.Clone(img)
	}
	b := params.Brightness / 100
	k := params.Contrast / 100
	s := params.Saturation / 100

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r := float64(c.R) / 255
		g := float64(c.G) / 255
		bl := float64(c.B) / 255

		r, g, bl = clamp(r*b, 0, 1), clamp(g*b, 0, 1), clamp(bl*b, 0, 1)

		r = clamp((r-0.5)*k+0.5, 0, 1)
		g = clamp((g-0.5)*k+0.5, 0, 1)
		bl = clamp((bl-0.5)*k+0.5, 0, 1)

		nr := (0.213+0.787*s)*r + (0.715-0.715*s)*g + (0.072-0.072*s)*bl
		ng := (0.213-0.213*s)*r + (0.715+0.285*s)*g + (0.072-0.072*s)*bl
		nb := (0.213-0.213*s)*r + (0.715-0.715*s)*g + (0.072+0.928*s)*bl

		return color.NRGBA{R: to8(nr), G: to8(ng), B: to8(nb), A: c.A}
	})
}

// RemoveBackground makes every pixel whose red, green and blue are all
// strictly above threshold fully transparent, then re-encodes losslessly.
func (p *Processor) RemoveBackground(src types.Payload, threshold uint8) (types.Payload, error) {
	img, _, err := p.DecodePayload(src)
	if err != nil {
		return "", fmt.Errorf("failed to load image for background removal: %w", err)
	}
	return p.EncodePayload(MaskBackground(img, threshold), p.lossless())
}

// MaskBackground returns a copy of img with near-white pixels cleared.
func MaskBackground(img image.Image, threshold uint8) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		if out.Pix[i] > threshold && out.Pix[i+1] > threshold && out.Pix[i+2] > threshold {
			out.Pix[i+3] = 0
		}
	}
	return out
}

// CropTo cuts the display-space rectangle out of src and re-encodes it
// losslessly. The natural size is taken from the decoded image.
func (p *Processor) CropTo(src types.Payload, rect types.Rect, metrics types.DisplayMetrics) (types.Payload, error) {
	img, _, err := p.DecodePayload(src)
	if err != nil {
		return "", fmt.Errorf("failed to load image for crop: %w", err)
	}
	b := img.Bounds()
	metrics.Natural = types.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}

	r, err := NaturalCropRect(rect, metrics)
	if err != nil {
		return "", err
	}
	return p.EncodePayload(CropSurface(img, r), p.lossless())
}

// NaturalCropRect converts a display-space crop rectangle into natural image
// pixels: the image offset inside the container is removed (never going
// negative) and each axis is scaled by natural/displayed.
func NaturalCropRect(rect types.Rect, metrics types.DisplayMetrics) (image.Rectangle, error) {
	off := metrics.Offset()
	x := math.Max(0, rect.X-off.X)
	y := math.Max(0, rect.Y-off.Y)

	if x >= metrics.Displayed.Width || y >= metrics.Displayed.Height {
		return image.Rectangle{}, ErrCropOutOfBounds
	}

	sx, sy := metrics.Scale()
	x0 := int(math.Round(x * sx))
	y0 := int(math.Round(y * sy))
	w := int(rect.Width * sx)
	h := int(rect.Height * sy)
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, ErrEmptyCrop
	}
	return image.Rect(x0, y0, x0+w, y0+h), nil
}

// CropSurface returns a copy of r (relative to the image origin) on a new
// surface. Parts of r beyond the image stay transparent.
func CropSurface(img image.Image, r image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	b := img.Bounds()
	abs := r.Add(b.Min)
	src := abs.Intersect(b)
	if !src.Empty() {
		draw.Draw(out, src.Sub(abs.Min), img, src.Min, draw.Src)
	}
	return out
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	enc := Encoding{Format: format, Quality: quality}
	if strings.ToLower(format) != "png" {
		enc.Format = "jpeg"
	}
	if err := Encode(&buf, img, enc); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage writes img to path with the given encoding.
func (p *Processor) SaveImage(img image.Image, path string, enc Encoding) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Encode(f, img, enc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func to8(v float64) uint8 {
	return uint8(clamp(v, 0, 1)*255 + 0.5)
}
