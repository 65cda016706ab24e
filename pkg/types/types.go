package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Payload is an encoded image as a self-describing data URL
// ("data:image/png;base64,..."). A payload is never mutated; every edit
// produces a new one.
type Payload string

// MIMEType returns the media type declared by the payload, or "" if the
// payload is not a data URL.
func (p Payload) MIMEType() string {
	s := string(p)
	if !strings.HasPrefix(s, "data:") {
		return ""
	}
	end := strings.IndexAny(s, ";,")
	if end < 0 {
		return ""
	}
	return s[len("data:"):end]
}

// Empty reports whether the payload carries no image.
func (p Payload) Empty() bool {
	return p == ""
}

// Point is a position in display (container) coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in display units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is the crop rectangle in display coordinates. Width and Height are
// never negative.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("%.1fx%.1f@%.1f,%.1f", r.Width, r.Height, r.X, r.Y)
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Viewport describes where the editor shows the image: a container of the
// given width whose height is at least MinHeight, holding the image scaled
// down (never up) to fit MaxImageWidth x MaxImageHeight and centred.
type Viewport struct {
	Width          float64 `json:"width"`
	MinHeight      float64 `json:"min_height"`
	MaxImageWidth  float64 `json:"max_image_width"`
	MaxImageHeight float64 `json:"max_image_height"`
}

// DefaultViewport mirrors a typical editor pane: 800 wide, at least 320 tall,
// image limited to 384 px of height.
func DefaultViewport() Viewport {
	return Viewport{
		Width:          800,
		MinHeight:      320,
		MaxImageWidth:  800,
		MaxImageHeight: 384,
	}
}

// DisplayMetrics is the on-screen geometry of one image inside a viewport.
type DisplayMetrics struct {
	Container Size `json:"container"`
	Displayed Size `json:"displayed"`
	Natural   Size `json:"natural"`
}

// Offset returns the position of the displayed image inside the container.
func (m DisplayMetrics) Offset() Point {
	return Point{
		X: (m.Container.Width - m.Displayed.Width) / 2,
		Y: (m.Container.Height - m.Displayed.Height) / 2,
	}
}

// Scale returns the natural/displayed ratio per axis.
func (m DisplayMetrics) Scale() (float64, float64) {
	if m.Displayed.Width <= 0 || m.Displayed.Height <= 0 {
		return 0, 0
	}
	return m.Natural.Width / m.Displayed.Width, m.Natural.Height / m.Displayed.Height
}

// ImageBounds returns the displayed image as a rectangle in container
// coordinates.
func (m DisplayMetrics) ImageBounds() Rect {
	off := m.Offset()
	return Rect{X: off.X, Y: off.Y, Width: m.Displayed.Width, Height: m.Displayed.Height}
}

// Layout places an image of the given natural size in the viewport.
func (v Viewport) Layout(naturalWidth, naturalHeight int) DisplayMetrics {
	nw, nh := float64(naturalWidth), float64(naturalHeight)
	maxW := v.MaxImageWidth
	if maxW <= 0 || maxW > v.Width {
		maxW = v.Width
	}
	maxH := v.MaxImageHeight

	scale := 1.0
	if nw > 0 && maxW > 0 {
		scale = math.Min(scale, maxW/nw)
	}
	if nh > 0 && maxH > 0 {
		scale = math.Min(scale, maxH/nh)
	}

	displayed := Size{Width: nw * scale, Height: nh * scale}
	container := Size{Width: v.Width, Height: math.Max(v.MinHeight, displayed.Height)}
	if container.Width < displayed.Width {
		container.Width = displayed.Width
	}

	return DisplayMetrics{
		Container: container,
		Displayed: displayed,
		Natural:   Size{Width: nw, Height: nh},
	}
}

// ErrFilterRange is returned for filter percentages outside [0,200].
var ErrFilterRange = errors.New("filter value out of range")

const (
	// FilterMin and FilterMax bound every filter percentage.
	FilterMin = 0
	FilterMax = 200
	// FilterIdentity leaves a channel unchanged.
	FilterIdentity = 100
)

// FilterParams holds the three adjustment percentages. 100 is identity.
type FilterParams struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

// DefaultFilters returns the identity adjustment.
func DefaultFilters() FilterParams {
	return FilterParams{
		Brightness: FilterIdentity,
		Contrast:   FilterIdentity,
		Saturation: FilterIdentity,
	}
}

// IsIdentity reports whether applying p would leave pixels unchanged.
func (p FilterParams) IsIdentity() bool {
	return p == DefaultFilters()
}

// Validate checks every percentage is within [FilterMin, FilterMax].
func (p FilterParams) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < FilterMin || v > FilterMax {
			return fmt.Errorf("%s %.1f: %w", name, v, ErrFilterRange)
		}
		return nil
	}
	if err := check("brightness", p.Brightness); err != nil {
		return err
	}
	if err := check("contrast", p.Contrast); err != nil {
		return err
	}
	return check("saturation", p.Saturation)
}

func (p FilterParams) String() string {
	return fmt.Sprintf("brightness(%g%%) contrast(%g%%) saturate(%g%%)", p.Brightness, p.Contrast, p.Saturation)
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
