// Package capture records freehand pointer and touch strokes into a raster
// and emits a PNG snapshot of it.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// ErrNotInitialized is returned by Snapshot before Mount.
var (
	ErrNotInitialized = errors.New("capture: surface not initialized")
	ErrInvalidSize    = errors.New("capture: invalid surface size")
)

// State is the surface lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDrawing
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDrawing:
		return "drawing"
	default:
		return "uninitialized"
	}
}

// InputKind distinguishes mouse/pen pointers from touch input.
type InputKind string

const (
	InputPointer InputKind = "pointer"
	InputTouch   InputKind = "touch"
)

// Point is a surface-relative coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport maps client coordinates onto the surface. Width and Height are
// the displayed size; when they differ from the raster size the point is
// scaled.
type Viewport struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Option configures a Surface.
type Option func(*Surface)

// WithLineWidth sets the pen width in pixels.
func WithLineWidth(w float64) Option {
	return func(s *Surface) {
		if w > 0 {
			s.lineWidth = w
		}
	}
}

// WithInk sets the pen color.
func WithInk(c color.Color) Option {
	return func(s *Surface) {
		if c != nil {
			s.ink = c
		}
	}
}

// Surface is a single-threaded drawing surface. Callers serialize events.
type Surface struct {
	dc        *gg.Context
	width     int
	height    int
	state     State
	last      Point
	lineWidth float64
	ink       color.Color
	viewport  *Viewport
	segments  int
}

// NewSurface returns an uninitialized surface; call Mount before drawing.
func NewSurface(opts ...Option) *Surface {
	s := &Surface{
		lineWidth: 3,
		ink:       color.Black,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount allocates the raster and paints it white.
func (s *Surface) Mount(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w %dx%d", ErrInvalidSize, width, height)
	}
	s.dc = gg.NewContext(width, height)
	s.width, s.height = width, height
	s.paintBlank()
	s.state = StateReady
	return nil
}

// SetViewport installs the client-to-surface transform used by ToSurface.
func (s *Surface) SetViewport(v Viewport) {
	s.viewport = &v
}

// ToSurface converts a client coordinate into surface pixels.
func (s *Surface) ToSurface(clientX, clientY float64) Point {
	if s.viewport == nil {
		return Point{X: clientX, Y: clientY}
	}
	v := s.viewport
	p := Point{X: clientX - v.Left, Y: clientY - v.Top}
	if v.Width > 0 && s.width > 0 {
		p.X *= float64(s.width) / v.Width
	}
	if v.Height > 0 && s.height > 0 {
		p.Y *= float64(s.height) / v.Height
	}
	return p
}

// State reports the current lifecycle state.
func (s *Surface) State() State { return s.state }

// Size returns the raster dimensions.
func (s *Surface) Size() (int, int) { return s.width, s.height }

// Segments counts line segments drawn since the last Clear.
func (s *Surface) Segments() int { return s.segments }

// StartStroke begins a path at p. It is a no-op before Mount.
func (s *Surface) StartStroke(p Point) bool {
	if s.state == StateUninitialized {
		return false
	}
	s.last = s.clamp(p)
	s.state = StateDrawing
	return true
}

// ExtendStroke draws a segment from the previous point to p while drawing.
// The return value tells touch callers to suppress the default pan gesture.
func (s *Surface) ExtendStroke(p Point, input InputKind) bool {
	if s.state != StateDrawing {
		return false
	}
	next := s.clamp(p)
	s.dc.SetColor(s.ink)
	if next == s.last {
		s.dc.DrawCircle(next.X, next.Y, s.lineWidth/2)
		s.dc.Fill()
	} else {
		s.dc.SetLineWidth(s.lineWidth)
		s.dc.SetLineCapRound()
		s.dc.SetLineJoinRound()
		s.dc.DrawLine(s.last.X, s.last.Y, next.X, next.Y)
		s.dc.Stroke()
	}
	s.last = next
	s.segments++
	return input == InputTouch
}

// EndStroke closes the current path. Calling it while not drawing is a no-op.
func (s *Surface) EndStroke() {
	if s.state == StateDrawing {
		s.state = StateReady
	}
}

// Leave handles the pointer leaving the surface mid-stroke.
func (s *Surface) Leave() {
	s.EndStroke()
}

// Clear resets the raster to white, keeping its size.
func (s *Surface) Clear() {
	if s.state == StateUninitialized {
		return
	}
	s.paintBlank()
	s.segments = 0
	s.state = StateReady
}

// Snapshot encodes the raster as PNG without modifying it.
func (s *Surface) Snapshot() ([]byte, error) {
	if s.state == StateUninitialized {
		return nil, ErrNotInitialized
	}
	var buf bytes.Buffer
	if err := s.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("capture: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Surface) paintBlank() {
	s.dc.SetColor(color.White)
	s.dc.Clear()
}

func (s *Surface) clamp(p Point) Point {
	return Point{
		X: math.Max(0, math.Min(p.X, float64(s.width-1))),
		Y: math.Max(0, math.Min(p.Y, float64(s.height-1))),
	}
}
