package cropper

import (
	"testing"

	"github.com/menta2k/image-editor/pkg/types"
)

// createTestMetrics lays out a 200x100 image centred in a 400x300 container.
func createTestMetrics() types.DisplayMetrics {
	return types.DisplayMetrics{
		Container: types.Size{Width: 400, Height: 300},
		Displayed: types.Size{Width: 200, Height: 100},
		Natural:   types.Size{Width: 200, Height: 100},
	}
}

func newTestSession(r types.Rect) *Session {
	s := NewSession(createTestMetrics())
	s.SetRect(r)
	return s
}

func TestNewSessionInitialRect(t *testing.T) {
	s := NewSession(createTestMetrics())
	r := s.Rect()

	// image sits at (100,100); 80% is 160x80 centred inside it
	expected := types.Rect{X: 120, Y: 110, Width: 160, Height: 80}
	if r != expected {
		t.Errorf("Expected initial rect %v, got %v", expected, r)
	}
	if s.Mode() != ModeCreating {
		t.Errorf("Expected mode creating, got %v", s.Mode())
	}
	if s.Pressed() {
		t.Error("Session should open without a pressed pointer")
	}
	if s.Cursor() != CursorCrosshair {
		t.Errorf("Expected crosshair cursor, got %v", s.Cursor())
	}
}

func TestHitTestOrder(t *testing.T) {
	r := types.Rect{X: 100, Y: 100, Width: 100, Height: 50}
	tests := []struct {
		name     string
		p        types.Point
		expected Handle
	}{
		{"top-left corner", types.Point{X: 102, Y: 98}, HandleTopLeft},
		{"top-right corner", types.Point{X: 199, Y: 105}, HandleTopRight},
		{"bottom-left corner", types.Point{X: 95, Y: 151}, HandleBottomLeft},
		{"bottom-right corner", types.Point{X: 205, Y: 145}, HandleBottomRight},
		{"left edge", types.Point{X: 100, Y: 125}, HandleLeft},
		{"right edge", types.Point{X: 191, Y: 125}, HandleRight},
		{"top edge", types.Point{X: 150, Y: 109}, HandleTop},
		{"bottom edge", types.Point{X: 150, Y: 150}, HandleBottom},
		{"interior", types.Point{X: 150, Y: 125}, HandleNone},
		{"far outside", types.Point{X: 10, Y: 10}, HandleNone},
		{"exactly at threshold", types.Point{X: 90, Y: 125}, HandleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HitTest(r, tt.p, 10); got != tt.expected {
				t.Errorf("HitTest(%v) = %v, expected %v", tt.p, got, tt.expected)
			}
		})
	}
}

func TestHitTestCornerWinsOnTinyRect(t *testing.T) {
	// every edge is within range; corner priority picks top-left
	r := types.Rect{X: 50, Y: 50, Width: 4, Height: 4}
	if got := HitTest(r, types.Point{X: 52, Y: 52}, 10); got != HandleTopLeft {
		t.Errorf("Expected top-left, got %v", got)
	}
}

func TestPointerDownOutsideStartsCreate(t *testing.T) {
	s := newTestSession(types.Rect{X: 100, Y: 100, Width: 100, Height: 50})

	s.PointerDown(types.Point{X: 300, Y: 250})
	if s.Mode() != ModeCreating {
		t.Errorf("Expected creating, got %v", s.Mode())
	}
	if r := s.Rect(); r != (types.Rect{X: 300, Y: 250}) {
		t.Errorf("Expected zero rect anchored at pointer, got %v", r)
	}

	// dragging up and to the left still yields a positive rectangle
	s.PointerMove(types.Point{X: 250, Y: 200})
	expected := types.Rect{X: 250, Y: 200, Width: 50, Height: 50}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected %v, got %v", expected, r)
	}

	s.PointerMove(types.Point{X: 350, Y: 280})
	expected = types.Rect{X: 300, Y: 250, Width: 50, Height: 30}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected %v, got %v", expected, r)
	}
}

func TestCreateClampsPointerToContainer(t *testing.T) {
	s := newTestSession(types.Rect{X: 100, Y: 100, Width: 100, Height: 50})

	s.PointerDown(types.Point{X: 350, Y: 250})
	s.PointerMove(types.Point{X: 900, Y: 900})

	expected := types.Rect{X: 350, Y: 250, Width: 50, Height: 50}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected %v, got %v", expected, r)
	}
}

func TestMoveTranslatesAndClamps(t *testing.T) {
	s := newTestSession(types.Rect{X: 100, Y: 100, Width: 100, Height: 50})

	s.PointerDown(types.Point{X: 150, Y: 125})
	if s.Mode() != ModeMoving {
		t.Fatalf("Expected moving, got %v", s.Mode())
	}
	if s.Cursor() != CursorMove {
		t.Errorf("Expected move cursor, got %v", s.Cursor())
	}

	s.PointerMove(types.Point{X: 170, Y: 135})
	expected := types.Rect{X: 120, Y: 110, Width: 100, Height: 50}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected %v, got %v", expected, r)
	}

	// a large drag pins the rect against the container edge
	s.PointerMove(types.Point{X: 400, Y: 300})
	expected = types.Rect{X: 300, Y: 250, Width: 100, Height: 50}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected clamped %v, got %v", expected, r)
	}

	s.PointerMove(types.Point{X: 0, Y: 0})
	if r := s.Rect(); r.X != 0 || r.Y != 0 {
		t.Errorf("Expected rect pinned at origin, got %v", r)
	}
}

func TestResizeBottomRightClampsAtZero(t *testing.T) {
	s := newTestSession(types.Rect{X: 100, Y: 100, Width: 100, Height: 50})

	s.PointerDown(types.Point{X: 200, Y: 150})
	if s.Mode() != ModeResizing || s.Handle() != HandleBottomRight {
		t.Fatalf("Expected resizing bottom-right, got %v %v", s.Mode(), s.Handle())
	}
	if s.Cursor() != CursorNWSEResize {
		t.Errorf("Expected nwse-resize cursor, got %v", s.Cursor())
	}

	s.PointerMove(types.Point{X: 250, Y: 180})
	expected := types.Rect{X: 100, Y: 100, Width: 150, Height: 80}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected %v, got %v", expected, r)
	}

	s.PointerMove(types.Point{X: 50, Y: 60})
	expected = types.Rect{X: 100, Y: 100, Width: 0, Height: 0}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected collapsed %v, got %v", expected, r)
	}
}

func TestResizeTopLeftFlips(t *testing.T) {
	s := newTestSession(types.Rect{X: 100, Y: 100, Width: 100, Height: 50})

	s.PointerDown(types.Point{X: 100, Y: 100})
	if s.Handle() != HandleTopLeft {
		t.Fatalf("Expected top-left handle, got %v", s.Handle())
	}

	s.PointerMove(types.Point{X: 80, Y: 90})
	expected := types.Rect{X: 80, Y: 90, Width: 120, Height: 60}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected %v, got %v", expected, r)
	}

	// past the opposite corner the rect flips instead of collapsing
	s.PointerMove(types.Point{X: 230, Y: 170})
	expected = types.Rect{X: 200, Y: 150, Width: 30, Height: 20}
	if r := s.Rect(); r != expected {
		t.Errorf("Expected flipped %v, got %v", expected, r)
	}
}

func TestResizeSingleEdges(t *testing.T) {
	start := types.Rect{X: 100, Y: 100, Width: 100, Height: 50}
	tests := []struct {
		name     string
		down     types.Point
		move     types.Point
		handle   Handle
		cursor   Cursor
		expected types.Rect
	}{
		{"left", types.Point{X: 100, Y: 125}, types.Point{X: 90, Y: 0}, HandleLeft, CursorEWResize,
			types.Rect{X: 90, Y: 100, Width: 110, Height: 50}},
		{"right", types.Point{X: 200, Y: 125}, types.Point{X: 260, Y: 0}, HandleRight, CursorEWResize,
			types.Rect{X: 100, Y: 100, Width: 160, Height: 50}},
		{"top", types.Point{X: 150, Y: 100}, types.Point{X: 0, Y: 120}, HandleTop, CursorNSResize,
			types.Rect{X: 100, Y: 120, Width: 100, Height: 30}},
		{"bottom", types.Point{X: 150, Y: 150}, types.Point{X: 0, Y: 200}, HandleBottom, CursorNSResize,
			types.Rect{X: 100, Y: 100, Width: 100, Height: 100}},
		{"top-right", types.Point{X: 200, Y: 100}, types.Point{X: 220, Y: 160}, HandleTopRight, CursorNESWResize,
			types.Rect{X: 100, Y: 150, Width: 120, Height: 10}},
		{"bottom-left", types.Point{X: 100, Y: 150}, types.Point{X: 120, Y: 90}, HandleBottomLeft, CursorNESWResize,
			types.Rect{X: 120, Y: 100, Width: 80, Height: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(start)
			s.PointerDown(tt.down)
			if s.Handle() != tt.handle {
				t.Fatalf("Expected handle %v, got %v", tt.handle, s.Handle())
			}
			if s.Cursor() != tt.cursor {
				t.Errorf("Expected cursor %v, got %v", tt.cursor, s.Cursor())
			}
			s.PointerMove(tt.move)
			if r := s.Rect(); r != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, r)
			}
		})
	}
}

func TestPointerUpKeepsRect(t *testing.T) {
	s := newTestSession(types.Rect{X: 100, Y: 100, Width: 100, Height: 50})

	s.PointerDown(types.Point{X: 150, Y: 125})
	s.PointerMove(types.Point{X: 160, Y: 125})
	s.PointerUp()

	if s.Mode() != ModeIdle {
		t.Errorf("Expected idle after pointer up, got %v", s.Mode())
	}
	if s.Cursor() != CursorCrosshair {
		t.Errorf("Expected crosshair after pointer up, got %v", s.Cursor())
	}

	before := s.Rect()
	s.PointerMove(types.Point{X: 300, Y: 300})
	if s.Rect() != before {
		t.Error("Moves without a press must not change the rect")
	}
	if before.X != 110 {
		t.Errorf("Expected rect to keep the drag result, got %v", before)
	}
}

func TestHandleString(t *testing.T) {
	if HandleTopLeft.String() != "top-left" || HandleBottom.String() != "bottom" {
		t.Error("Unexpected handle names")
	}
	if ModeResizing.String() != "resizing" {
		t.Errorf("Unexpected mode name %q", ModeResizing.String())
	}
}
