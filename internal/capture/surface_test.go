package capture

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
)

func mounted(t *testing.T) *Surface {
	t.Helper()
	s := NewSurface()
	if err := s.Mount(120, 80); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return s
}

func blankSnapshot(t *testing.T) []byte {
	t.Helper()
	snap, err := mounted(t).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestSnapshotBeforeMount(t *testing.T) {
	s := NewSurface()
	if _, err := s.Snapshot(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if s.StartStroke(Point{X: 1, Y: 1}) {
		t.Fatalf("StartStroke must be a no-op before Mount")
	}
	if s.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", s.State())
	}
}

func TestMountRejectsInvalidSize(t *testing.T) {
	if err := NewSurface().Mount(0, 10); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestSnapshotIsPNG(t *testing.T) {
	snap := blankSnapshot(t)
	img, err := png.Decode(bytes.NewReader(snap))
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 80 {
		t.Fatalf("unexpected snapshot size %v", b)
	}
}

func TestStrokeWithoutMovementLeavesSurfaceBlank(t *testing.T) {
	s := mounted(t)
	s.StartStroke(Point{X: 10, Y: 10})
	s.EndStroke()

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !bytes.Equal(snap, blankSnapshot(t)) {
		t.Fatalf("expected blank encoding when no segment was drawn")
	}
}

func TestStrokeWithMovementMarksSurface(t *testing.T) {
	tests := []struct {
		name  string
		moves []Point
	}{
		{"single segment", []Point{{X: 60, Y: 40}}},
		{"polyline", []Point{{X: 20, Y: 20}, {X: 40, Y: 60}, {X: 100, Y: 10}}},
		{"zero length segment", []Point{{X: 10, Y: 10}}},
		{"off surface point is clamped", []Point{{X: 500, Y: -30}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mounted(t)
			s.StartStroke(Point{X: 10, Y: 10})
			for _, p := range tt.moves {
				s.ExtendStroke(p, InputPointer)
			}
			s.EndStroke()

			snap, err := s.Snapshot()
			if err != nil {
				t.Fatalf("Snapshot: %v", err)
			}
			if bytes.Equal(snap, blankSnapshot(t)) {
				t.Fatalf("expected a non-blank encoding")
			}
		})
	}
}

func TestExtendOutsideDrawingIsIgnored(t *testing.T) {
	s := mounted(t)
	s.ExtendStroke(Point{X: 50, Y: 50}, InputPointer)
	if s.Segments() != 0 {
		t.Fatalf("expected no segments while ready")
	}
	snap, _ := s.Snapshot()
	if !bytes.Equal(snap, blankSnapshot(t)) {
		t.Fatalf("expected blank surface")
	}
}

func TestTouchExtendSuppressesDefaultGesture(t *testing.T) {
	s := mounted(t)
	s.StartStroke(Point{X: 5, Y: 5})
	if !s.ExtendStroke(Point{X: 30, Y: 30}, InputTouch) {
		t.Fatalf("touch extend must suppress the pan gesture")
	}
	if s.ExtendStroke(Point{X: 40, Y: 40}, InputPointer) {
		t.Fatalf("pointer extend has no gesture to suppress")
	}
}

func TestLeaveEndsStroke(t *testing.T) {
	s := mounted(t)
	s.StartStroke(Point{X: 5, Y: 5})
	if s.State() != StateDrawing {
		t.Fatalf("expected drawing state")
	}
	s.Leave()
	if s.State() != StateReady {
		t.Fatalf("expected ready after leave, got %s", s.State())
	}
	s.EndStroke()
	if s.State() != StateReady {
		t.Fatalf("EndStroke must be idempotent")
	}
}

func TestClearMatchesFreshSurface(t *testing.T) {
	s := mounted(t)
	s.StartStroke(Point{X: 0, Y: 0})
	s.ExtendStroke(Point{X: 119, Y: 79}, InputPointer)
	s.EndStroke()

	s.Clear()
	first, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	s.Clear()
	second, _ := s.Snapshot()

	fresh := blankSnapshot(t)
	if !bytes.Equal(first, fresh) || !bytes.Equal(second, fresh) {
		t.Fatalf("expected cleared surface to encode like a fresh one")
	}
	if w, h := s.Size(); w != 120 || h != 80 {
		t.Fatalf("clear must keep dimensions, got %dx%d", w, h)
	}
	if s.Segments() != 0 {
		t.Fatalf("expected segment count reset")
	}
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	s := mounted(t)
	s.StartStroke(Point{X: 10, Y: 10})
	s.ExtendStroke(Point{X: 90, Y: 70}, InputPointer)
	a, _ := s.Snapshot()
	b, _ := s.Snapshot()
	if !bytes.Equal(a, b) {
		t.Fatalf("consecutive snapshots differ")
	}
	if s.State() != StateDrawing {
		t.Fatalf("snapshot must not end the stroke")
	}
}

func TestToSurfaceScalesViewport(t *testing.T) {
	s := mounted(t)
	s.SetViewport(Viewport{Left: 100, Top: 50, Width: 60, Height: 40})
	p := s.ToSurface(130, 70)
	if p.X != 60 || p.Y != 40 {
		t.Fatalf("expected (60,40), got (%v,%v)", p.X, p.Y)
	}
}
