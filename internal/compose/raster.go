package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/fogleman/gg"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-rx/internal/overlay"
)

var (
	inkColor  = color.Black
	ruleColor = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
)

// Flattened is a single PNG holding header, prescription and footer.
type Flattened struct {
	PNG          []byte
	Width        int
	Height       int
	Layout       Layout
	LogoDegraded bool
}

// ComposeFlattenedImage stacks header, the source image at its natural size
// and footer onto one canvas as wide as the source image.
func (e *Engine) ComposeFlattenedImage(ctx context.Context, art Artifact, tpl overlay.Templates) (result *Flattened, err error) {
	start := time.Now()
	defer func() { e.observe(TargetRaster, start, err) }()

	ctx, span := composeTracer.Start(ctx, "compose.flattened_image")
	defer span.End()

	in, err := e.loadInputs(ctx, TargetRaster, art.SourceImage, tpl.Header)
	if err != nil {
		return nil, err
	}
	bounds := in.source.Bounds()
	layout := ComputeLayout(TargetRaster, tpl, float64(bounds.Dx()), float64(bounds.Dy()), in.logo != nil)
	span.SetAttributes(
		attribute.Int("compose.width", int(layout.Width)),
		attribute.Int("compose.height", int(layout.Height)),
	)

	dc := gg.NewContext(int(layout.Width), int(layout.Height))
	dc.SetColor(color.White)
	dc.Clear()

	faces := newFaceCache()
	defer faces.Close()

	if in.logo != nil && layout.Header.Logo != nil {
		drawLogo(dc, in.logo, *layout.Header.Logo, tpl.Header.Alignment)
	}
	if err := drawLines(dc, faces, layout.Header.Lines); err != nil {
		return nil, err
	}
	drawRule(dc, layout.Rules[0], layout.Width)
	dc.DrawImage(in.source, int(layout.Image.X), int(layout.Image.Y))
	drawRule(dc, layout.Rules[1], layout.Width)
	if err := drawLines(dc, faces, layout.Footer.Lines); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("compose: encode png: %w", err)
	}
	return &Flattened{
		PNG:          buf.Bytes(),
		Width:        int(layout.Width),
		Height:       int(layout.Height),
		Layout:       layout,
		LogoDegraded: tpl.Header.HasLogo() && in.logo == nil,
	}, nil
}

func drawLines(dc *gg.Context, faces *faceCache, lines []TextLine) error {
	dc.SetColor(inkColor)
	for _, line := range lines {
		if line.Text == "" {
			continue
		}
		face, err := faces.face(line.Style)
		if err != nil {
			return err
		}
		dc.SetFontFace(face)
		dc.DrawStringAnchored(line.Text, line.X, line.Baseline, specFor(line.Align).anchor, 0)
	}
	return nil
}

func drawRule(dc *gg.Context, y, width float64) {
	dc.SetColor(ruleColor)
	dc.SetLineWidth(1)
	dc.DrawLine(0, y+0.5, width, y+0.5)
	dc.Stroke()
}

// drawLogo fits img inside box, keeping its aspect ratio, and pins it to
// the aligned edge of the box.
func drawLogo(dc *gg.Context, img image.Image, box Rect, align overlay.Alignment) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	scale := math.Min(box.W/float64(b.Dx()), box.H/float64(b.Dy()))
	w := float64(b.Dx()) * scale
	h := float64(b.Dy()) * scale
	x := box.X + (box.W-w)/2
	switch align {
	case overlay.AlignLeft:
		x = box.X
	case overlay.AlignRight:
		x = box.X + box.W - w
	}
	y := box.Y + (box.H-h)/2

	dc.Push()
	dc.Translate(x, y)
	dc.Scale(scale, scale)
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	dc.Pop()
}
