package processing

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/menta2k/image-editor/pkg/types"
)

const handleSize = 8

var (
	backdropLight = color.NRGBA{0xee, 0xee, 0xee, 255}
	backdropDark  = color.NRGBA{0xcc, 0xcc, 0xcc, 255}
	frameColor    = color.NRGBA{255, 255, 255, 255}
)

// CropPreview renders the container the way the editor shows it during a
// crop: checkered backdrop, the image scaled into its displayed bounds, the
// area outside the selection dimmed, and a white frame with eight handles.
func CropPreview(img image.Image, rect types.Rect, metrics types.DisplayMetrics) *image.NRGBA {
	w := int(metrics.Container.Width + 0.5)
	h := int(metrics.Container.Height + 0.5)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	drawCheckers(out, 8)

	ib := metrics.ImageBounds()
	dst := image.Rect(int(ib.X+0.5), int(ib.Y+0.5), int(ib.Right()+0.5), int(ib.Bottom()+0.5))
	draw.ApproxBiLinear.Scale(out, dst, img, img.Bounds(), draw.Over, nil)

	sel := image.Rect(int(rect.X+0.5), int(rect.Y+0.5), int(rect.Right()+0.5), int(rect.Bottom()+0.5))
	dimOutside(out, sel)
	drawBox(out, sel, frameColor, 2)
	for _, hr := range handleRects(sel) {
		draw.Draw(out, hr, &image.Uniform{frameColor}, image.Point{}, draw.Src)
	}
	return out
}

// handleRects returns the eight handle squares: corners then edge midpoints.
func handleRects(r image.Rectangle) []image.Rectangle {
	hs := handleSize / 2
	cx := (r.Min.X + r.Max.X) / 2
	cy := (r.Min.Y + r.Max.Y) / 2
	centers := []image.Point{
		{r.Min.X, r.Min.Y}, {r.Max.X, r.Min.Y}, {r.Min.X, r.Max.Y}, {r.Max.X, r.Max.Y},
		{r.Min.X, cy}, {r.Max.X, cy}, {cx, r.Min.Y}, {cx, r.Max.Y},
	}
	out := make([]image.Rectangle, 0, len(centers))
	for _, c := range centers {
		out = append(out, image.Rect(c.X-hs, c.Y-hs, c.X+hs, c.Y+hs))
	}
	return out
}

func drawCheckers(img *image.NRGBA, cell int) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := backdropLight
			if (x/cell+y/cell)%2 == 1 {
				c = backdropDark
			}
			img.SetNRGBA(x, y, c)
		}
	}
}

// dimOutside halves the brightness of every pixel outside sel.
func dimOutside(img *image.NRGBA, sel image.Rectangle) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := img.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			if !(image.Point{x, y}).In(sel) {
				img.Pix[i+0] /= 2
				img.Pix[i+1] /= 2
				img.Pix[i+2] /= 2
			}
			i += 4
		}
	}
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Empty() {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x0 < b.Min.X {
		x0 = b.Min.X
	}
	if x1 > b.Max.X {
		x1 = b.Max.X
	}
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y0 < b.Min.Y {
		y0 = b.Min.Y
	}
	if y1 > b.Max.Y {
		y1 = b.Max.Y
	}
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
