package vision

import (
	"context"
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-editor/pkg/types"
)

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// FullFrame is returned when nothing in the image stands out.
var FullFrame = types.Box{X: 0, Y: 0, W: 1, H: 1}

// SubjectDetector locates the visually dominant region of an image from a
// saliency map, without any model.
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	// AnalysisSize is the longest side of the downscaled copy the saliency
	// map is computed on.
	AnalysisSize   int
	EdgeWeight     float64
	ContrastWeight float64
	// SaliencyCutoff is the fraction of the peak saliency a cell needs to
	// count as part of the subject.
	SaliencyCutoff float64
	// TailMass is trimmed from each end of the saliency distribution on
	// both axes so isolated specks do not stretch the box.
	TailMass        float64
	Padding         float64
	MinSubjectRatio float64
}

// New creates a new SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{
		config: DetectionConfig{
			AnalysisSize:    128,
			EdgeWeight:      0.6,
			ContrastWeight:  0.4,
			SaliencyCutoff:  0.5,
			TailMass:        0.05,
			Padding:         0.2,
			MinSubjectRatio: 0.05,
		},
	}
}

// NewWithConfig creates a new SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	if config.AnalysisSize <= 0 {
		config.AnalysisSize = 128
	}
	return &SubjectDetector{config: config}
}

// LocateSubject returns a normalized box around the most salient part of
// img. Flat images yield FullFrame.
func (d *SubjectDetector) LocateSubject(ctx context.Context, img image.Image) (types.Box, error) {
	if img.Bounds().Empty() {
		return types.Box{}, ErrEmptyImage
	}

	small := imaging.Fit(img, d.config.AnalysisSize, d.config.AnalysisSize, imaging.Box)
	if err := ctx.Err(); err != nil {
		return types.Box{}, err
	}

	sal := d.saliencyMap(small)
	width, height := small.Bounds().Dx(), small.Bounds().Dy()

	cols := make([]float64, width)
	rows := make([]float64, height)
	if !d.project(sal, cols, rows) {
		return FullFrame, nil
	}

	x0, x1 := span(cols, d.config.TailMass)
	y0, y1 := span(rows, d.config.TailMass)

	box := types.Box{
		X: float64(x0) / float64(width),
		Y: float64(y0) / float64(height),
		W: float64(x1-x0+1) / float64(width),
		H: float64(y1-y0+1) / float64(height),
	}
	return d.finish(box), nil
}

// saliencyMap scores each pixel by its difference to its neighbours and to
// the mean luminance. Transparent pixels score zero.
func (d *SubjectDetector) saliencyMap(img *image.NRGBA) [][]float64 {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	lum := make([][]float64, height)
	alpha := make([][]float64, height)
	var mean float64
	for y := 0; y < height; y++ {
		lum[y] = make([]float64, width)
		alpha[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			i := y*img.Stride + x*4
			r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
			lum[y][x] = (0.299*r + 0.587*g + 0.114*b) / 255
			alpha[y][x] = float64(img.Pix[i+3]) / 255
			mean += lum[y][x]
		}
	}
	mean /= float64(width * height)

	neighbors := [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

	sal := make([][]float64, height)
	for y := 0; y < height; y++ {
		sal[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			var edge float64
			n := 0
			for _, off := range neighbors {
				nx, ny := x+off[0], y+off[1]
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				edge += math.Abs(lum[y][x] - lum[ny][nx])
				n++
			}
			if n > 0 {
				edge /= float64(n)
			}
			contrast := math.Abs(lum[y][x] - mean)
			sal[y][x] = (d.config.EdgeWeight*edge + d.config.ContrastWeight*contrast) * alpha[y][x]
		}
	}
	return sal
}

// project sums the cells above the cutoff into column and row totals. It
// reports false when the map is flat.
func (d *SubjectDetector) project(sal [][]float64, cols, rows []float64) bool {
	var peak float64
	for _, row := range sal {
		for _, v := range row {
			peak = math.Max(peak, v)
		}
	}
	if peak < 1e-6 {
		return false
	}

	cutoff := peak * d.config.SaliencyCutoff
	for y, row := range sal {
		for x, v := range row {
			if v >= cutoff {
				cols[x] += v
				rows[y] += v
			}
		}
	}
	return true
}

// finish pads the box, enforces the minimum size and keeps it inside the
// unit square.
func (d *SubjectDetector) finish(b types.Box) types.Box {
	padX := b.W * d.config.Padding
	padY := b.H * d.config.Padding
	b.X -= padX
	b.Y -= padY
	b.W += 2 * padX
	b.H += 2 * padY

	minSide := math.Sqrt(d.config.MinSubjectRatio)
	if b.W < minSide {
		b.X -= (minSide - b.W) / 2
		b.W = minSide
	}
	if b.H < minSide {
		b.Y -= (minSide - b.H) / 2
		b.H = minSide
	}

	b.W = math.Min(b.W, 1)
	b.H = math.Min(b.H, 1)
	b.X = clamp(b.X, 0, 1-b.W)
	b.Y = clamp(b.Y, 0, 1-b.H)
	return b
}

// span returns the first and last index that remain after trimming tail of
// the total weight from each end.
func span(weights []float64, tail float64) (int, int) {
	var total float64
	for _, w := range weights {
		total += w
	}
	limit := total * tail

	lo, hi := 0, len(weights)-1
	var acc float64
	for i, w := range weights {
		acc += w
		if acc > limit {
			lo = i
			break
		}
	}
	acc = 0
	for i := len(weights) - 1; i >= 0; i-- {
		acc += weights[i]
		if acc > limit {
			hi = i
			break
		}
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
