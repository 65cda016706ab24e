package cropper

import (
	"math"

	"github.com/menta2k/image-editor/pkg/types"
)

// Mode is the pointer interaction currently driving the crop rectangle.
type Mode int

const (
	ModeIdle Mode = iota
	ModeCreating
	ModeMoving
	ModeResizing
)

func (m Mode) String() string {
	switch m {
	case ModeCreating:
		return "creating"
	case ModeMoving:
		return "moving"
	case ModeResizing:
		return "resizing"
	default:
		return "idle"
	}
}

// Handle identifies which edges of the rectangle follow the pointer while
// resizing.
type Handle int

const (
	HandleNone Handle = iota
	HandleTopLeft
	HandleTopRight
	HandleBottomLeft
	HandleBottomRight
	HandleLeft
	HandleRight
	HandleTop
	HandleBottom
)

var handleNames = map[Handle]string{
	HandleNone:        "",
	HandleTopLeft:     "top-left",
	HandleTopRight:    "top-right",
	HandleBottomLeft:  "bottom-left",
	HandleBottomRight: "bottom-right",
	HandleLeft:        "left",
	HandleRight:       "right",
	HandleTop:         "top",
	HandleBottom:      "bottom",
}

func (h Handle) String() string {
	return handleNames[h]
}

// Cursor is the pointer shape shown over the crop surface.
type Cursor string

const (
	CursorDefault    Cursor = "default"
	CursorCrosshair  Cursor = "crosshair"
	CursorMove       Cursor = "move"
	CursorNWSEResize Cursor = "nwse-resize"
	CursorNESWResize Cursor = "nesw-resize"
	CursorEWResize   Cursor = "ew-resize"
	CursorNSResize   Cursor = "ns-resize"
)

// CropConfig holds configuration for the crop interaction
type CropConfig struct {
	// EdgeThreshold is how close (in display units) a press must be to an
	// edge to grab it.
	EdgeThreshold float64
	// InitialCoverage is the fraction of the displayed image the first
	// rectangle covers, centred.
	InitialCoverage float64
}

// DefaultConfig returns the stock interaction settings.
func DefaultConfig() CropConfig {
	return CropConfig{
		EdgeThreshold:   10,
		InitialCoverage: 0.8,
	}
}

// edges records which rectangle edges a point is close to.
type edges struct {
	left, right, top, bottom bool
}

// handleTable is evaluated in order; corners come first so a press near two
// edges always grabs the corner.
var handleTable = []struct {
	handle Handle
	match  func(e edges) bool
}{
	{HandleTopLeft, func(e edges) bool { return e.left && e.top }},
	{HandleTopRight, func(e edges) bool { return e.right && e.top }},
	{HandleBottomLeft, func(e edges) bool { return e.left && e.bottom }},
	{HandleBottomRight, func(e edges) bool { return e.right && e.bottom }},
	{HandleLeft, func(e edges) bool { return e.left }},
	{HandleRight, func(e edges) bool { return e.right }},
	{HandleTop, func(e edges) bool { return e.top }},
	{HandleBottom, func(e edges) bool { return e.bottom }},
}

// HitTest returns the resize handle under p, or HandleNone.
func HitTest(r types.Rect, p types.Point, threshold float64) Handle {
	e := edges{
		left:   math.Abs(p.X-r.X) < threshold,
		right:  math.Abs(p.X-r.Right()) < threshold,
		top:    math.Abs(p.Y-r.Y) < threshold,
		bottom: math.Abs(p.Y-r.Bottom()) < threshold,
	}
	for _, entry := range handleTable {
		if entry.match(e) {
			return entry.handle
		}
	}
	return HandleNone
}

// Session is one open crop interaction over a laid-out image. It is not
// safe for concurrent use; the editor serializes access.
type Session struct {
	config    CropConfig
	container types.Size
	rect      types.Rect
	mode      Mode
	handle    Handle
	pressed   bool
	dragStart types.Point
}

// NewSession opens a crop session with a centred rectangle covering
// InitialCoverage of the displayed image.
func NewSession(metrics types.DisplayMetrics) *Session {
	return NewSessionWithConfig(DefaultConfig(), metrics)
}

// NewSessionWithConfig opens a crop session with custom configuration
func NewSessionWithConfig(config CropConfig, metrics types.DisplayMetrics) *Session {
	img := metrics.ImageBounds()
	cov := clamp(config.InitialCoverage, 0, 1)
	w := img.Width * cov
	h := img.Height * cov

	return &Session{
		config:    config,
		container: metrics.Container,
		rect: types.Rect{
			X:      img.X + (img.Width-w)/2,
			Y:      img.Y + (img.Height-h)/2,
			Width:  w,
			Height: h,
		},
		mode: ModeCreating,
	}
}

// Rect returns the current selection.
func (s *Session) Rect() types.Rect {
	return s.rect
}

// SetRect replaces the selection, clamped to the container.
func (s *Session) SetRect(r types.Rect) {
	r.Width = math.Max(0, r.Width)
	r.Height = math.Max(0, r.Height)
	r.X = clamp(r.X, 0, s.container.Width)
	r.Y = clamp(r.Y, 0, s.container.Height)
	r.Width = math.Min(r.Width, s.container.Width-r.X)
	r.Height = math.Min(r.Height, s.container.Height-r.Y)
	s.rect = r
}

// Mode returns the current interaction mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Handle returns the grabbed handle while resizing.
func (s *Session) Handle() Handle {
	return s.handle
}

// Pressed reports whether a pointer is currently held down.
func (s *Session) Pressed() bool {
	return s.pressed
}

// PointerDown chooses the interaction for a press at p.
func (s *Session) PointerDown(p types.Point) {
	s.pressed = true
	s.dragStart = p
	s.handle = HandleNone

	if h := HitTest(s.rect, p, s.config.EdgeThreshold); h != HandleNone {
		s.mode = ModeResizing
		s.handle = h
		return
	}
	if s.rect.Contains(p) {
		s.mode = ModeMoving
		return
	}
	s.mode = ModeCreating
	s.rect = types.Rect{X: p.X, Y: p.Y}
}

// PointerMove updates the rectangle for a drag to p. Moves without a
// press are ignored.
func (s *Session) PointerMove(p types.Point) {
	if !s.pressed {
		return
	}
	x := clamp(p.X, 0, s.container.Width)
	y := clamp(p.Y, 0, s.container.Height)

	switch s.mode {
	case ModeCreating:
		s.rect = types.Rect{
			X:      math.Min(s.dragStart.X, x),
			Y:      math.Min(s.dragStart.Y, y),
			Width:  math.Abs(x - s.dragStart.X),
			Height: math.Abs(y - s.dragStart.Y),
		}
	case ModeMoving:
		dx := x - s.dragStart.X
		dy := y - s.dragStart.Y
		s.rect.X = math.Max(0, math.Min(s.rect.X+dx, s.container.Width-s.rect.Width))
		s.rect.Y = math.Max(0, math.Min(s.rect.Y+dy, s.container.Height-s.rect.Height))
		s.dragStart = types.Point{X: x, Y: y}
	case ModeResizing:
		s.rect = resize(s.rect, s.handle, x, y)
	}
}

// PointerUp ends the drag. The rectangle stays until applied or cancelled.
func (s *Session) PointerUp() {
	s.pressed = false
	s.mode = ModeIdle
	s.handle = HandleNone
}

// Cursor returns the pointer shape for the current interaction.
func (s *Session) Cursor() Cursor {
	if !s.pressed {
		return CursorCrosshair
	}
	return CursorFor(s.mode, s.handle)
}

// CursorFor maps a mode and handle to a cursor.
func CursorFor(mode Mode, handle Handle) Cursor {
	switch mode {
	case ModeMoving:
		return CursorMove
	case ModeResizing:
		switch handle {
		case HandleTopLeft, HandleBottomRight:
			return CursorNWSEResize
		case HandleTopRight, HandleBottomLeft:
			return CursorNESWResize
		case HandleLeft, HandleRight:
			return CursorEWResize
		case HandleTop, HandleBottom:
			return CursorNSResize
		}
	}
	return CursorCrosshair
}

// resize moves the edges named by h to (x, y). Left and top edges measure
// against the fixed opposite edge and may flip through it; right and bottom
// edges stop at zero size.
func resize(r types.Rect, h Handle, x, y float64) types.Rect {
	right, bottom := r.Right(), r.Bottom()

	flipX := func() (float64, float64) {
		return math.Min(right, x), math.Abs(right - x)
	}
	flipY := func() (float64, float64) {
		return math.Min(bottom, y), math.Abs(bottom - y)
	}

	switch h {
	case HandleTopLeft:
		r.X, r.Width = flipX()
		r.Y, r.Height = flipY()
	case HandleTopRight:
		r.Y, r.Height = flipY()
		r.Width = math.Max(0, x-r.X)
	case HandleBottomLeft:
		r.X, r.Width = flipX()
		r.Height = math.Max(0, y-r.Y)
	case HandleBottomRight:
		r.Width = math.Max(0, x-r.X)
		r.Height = math.Max(0, y-r.Y)
	case HandleLeft:
		r.X, r.Width = flipX()
	case HandleRight:
		r.Width = math.Max(0, x-r.X)
	case HandleTop:
		r.Y, r.Height = flipY()
	case HandleBottom:
		r.Height = math.Max(0, y-r.Y)
	}
	return r
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
