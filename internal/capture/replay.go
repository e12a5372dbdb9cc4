package capture

import (
	"errors"
	"fmt"

	"github.com/wolfman30/clinic-rx/internal/assets"
)

// EventType is a pointer lifecycle event.
type EventType string

const (
	EventDown  EventType = "down"
	EventMove  EventType = "move"
	EventUp    EventType = "up"
	EventLeave EventType = "leave"
)

// Event is one recorded input event in client coordinates.
type Event struct {
	Type  EventType `json:"type"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Input InputKind `json:"input,omitempty"`
}

// Recording is the client payload replayed onto a fresh surface.
type Recording struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	LineWidth float64   `json:"line_width,omitempty"`
	Viewport  *Viewport `json:"viewport,omitempty"`
	Events    []Event   `json:"events"`
}

// Limits bounds the surface a recording may request.
type Limits struct {
	MaxWidth  int
	MaxHeight int
	MaxEvents int
}

// DefaultLimits match the largest canvas the UI offers.
var DefaultLimits = Limits{MaxWidth: 2000, MaxHeight: 3000, MaxEvents: 100000}

var ErrRecordingTooLarge = errors.New("capture: recording exceeds limits")

// Result is the outcome of a replay.
type Result struct {
	PNG                []byte `json:"-"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	Strokes            int    `json:"strokes"`
	Segments           int    `json:"segments"`
	SuppressedGestures int    `json:"suppressed_gestures"`
}

// Replay draws every event in order onto a new surface and snapshots it.
func Replay(rec Recording, limits Limits) (*Result, error) {
	if limits.MaxWidth > 0 && rec.Width > limits.MaxWidth ||
		limits.MaxHeight > 0 && rec.Height > limits.MaxHeight ||
		int64(rec.Width)*int64(rec.Height) > assets.MaxPixels ||
		limits.MaxEvents > 0 && len(rec.Events) > limits.MaxEvents {
		return nil, fmt.Errorf("%w: %dx%d with %d events", ErrRecordingTooLarge, rec.Width, rec.Height, len(rec.Events))
	}

	s := NewSurface(WithLineWidth(rec.LineWidth))
	if err := s.Mount(rec.Width, rec.Height); err != nil {
		return nil, err
	}
	if rec.Viewport != nil {
		s.SetViewport(*rec.Viewport)
	}

	res := &Result{Width: rec.Width, Height: rec.Height}
	for i, ev := range rec.Events {
		p := s.ToSurface(ev.X, ev.Y)
		switch ev.Type {
		case EventDown:
			if s.StartStroke(p) {
				res.Strokes++
			}
		case EventMove:
			if s.ExtendStroke(p, ev.Input) {
				res.SuppressedGestures++
			}
		case EventUp:
			s.EndStroke()
		case EventLeave:
			s.Leave()
		default:
			return nil, fmt.Errorf("capture: event %d: unknown type %q", i, ev.Type)
		}
	}
	s.EndStroke()

	png, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	res.PNG = png
	res.Segments = s.Segments()
	return res, nil
}
