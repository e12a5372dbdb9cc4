package compose

import "github.com/wolfman30/clinic-rx/internal/overlay"

// Target selects the rendering surface a layout is computed for.
type Target string

const (
	TargetScreen   Target = "screen"
	TargetRaster   Target = "raster"
	TargetDocument Target = "document"
)

// TextStyle is the resolved font for one line.
type TextStyle struct {
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Italic bool    `json:"italic"`
}

// TextLine is one positioned line. X is the anchor point: the left edge,
// center or right edge depending on Align.
type TextLine struct {
	Text     string            `json:"text"`
	X        float64           `json:"x"`
	Baseline float64           `json:"baseline"`
	Align    overlay.Alignment `json:"align"`
	Style    TextStyle         `json:"style"`
}

// Rect is an axis-aligned box.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Block is a header or footer region.
type Block struct {
	Top    float64    `json:"top"`
	Height float64    `json:"height"`
	Lines  []TextLine `json:"lines"`
	Logo   *Rect      `json:"logo,omitempty"`
}

// Bottom is the y coordinate just below the block.
func (b Block) Bottom() float64 { return b.Top + b.Height }

// Layout is the geometry of a flattened composition.
type Layout struct {
	Target Target    `json:"target"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Header Block     `json:"header"`
	Image  Rect      `json:"image"`
	Footer Block     `json:"footer"`
	Rules  []float64 `json:"rules"`
}

// metrics holds the per-target constants. Screen and raster share pixel
// tiers; the document uses smaller point tiers for print density.
type metrics struct {
	primary        map[overlay.FontSize]float64
	secondary      float64
	padding        float64
	headerHeight   float64
	headerLogo     float64
	logoTop        float64
	logoSize       float64
	baseline       float64
	baselineLogo   float64
	lineStep       float64
	footerHeight   float64
	footerBaseline float64
	footerStep     float64
}

var pixelMetrics = metrics{
	primary: map[overlay.FontSize]float64{
		overlay.FontSmall:  14,
		overlay.FontMedium: 18,
		overlay.FontLarge:  22,
	},
	secondary:      12,
	padding:        20,
	headerHeight:   60,
	headerLogo:     120,
	logoTop:        10,
	logoSize:       50,
	baseline:       28,
	baselineLogo:   85,
	lineStep:       20,
	footerHeight:   40,
	footerBaseline: 17,
	footerStep:     16,
}

var documentMetrics = metrics{
	primary: map[overlay.FontSize]float64{
		overlay.FontSmall:  10,
		overlay.FontMedium: 12,
		overlay.FontLarge:  14,
	},
	secondary:      9,
	padding:        0,
	headerHeight:   22,
	headerLogo:     38,
	logoTop:        2,
	logoSize:       15,
	baseline:       8,
	baselineLogo:   24,
	lineStep:       6,
	footerHeight:   14,
	footerBaseline: 5,
	footerStep:     5,
}

func metricsFor(t Target) metrics {
	if t == TargetDocument {
		return documentMetrics
	}
	return pixelMetrics
}

// FontSizeFor maps a size tier to the concrete size used by target.
func FontSizeFor(t Target, size overlay.FontSize) float64 {
	m := metricsFor(t)
	if v, ok := m.primary[size]; ok {
		return v
	}
	return m.primary[overlay.FontMedium]
}

// HeaderHeight is the header block height for target.
func HeaderHeight(t Target, withLogo bool) float64 {
	m := metricsFor(t)
	if withLogo {
		return m.headerLogo
	}
	return m.headerHeight
}

// alignSpec is how one alignment is expressed in every target.
type alignSpec struct {
	textAlign string
	flex      string
	anchor    float64
	pdf       string
}

var alignments = map[overlay.Alignment]alignSpec{
	overlay.AlignLeft:   {textAlign: "left", flex: "flex-start", anchor: 0, pdf: "L"},
	overlay.AlignCenter: {textAlign: "center", flex: "center", anchor: 0.5, pdf: "C"},
	overlay.AlignRight:  {textAlign: "right", flex: "flex-end", anchor: 1, pdf: "R"},
}

func specFor(a overlay.Alignment) alignSpec {
	if s, ok := alignments[a]; ok {
		return s
	}
	return alignments[overlay.AlignCenter]
}

// anchorX returns the x coordinate text is anchored at inside [left, left+width].
func anchorX(a overlay.Alignment, left, width, padding float64) float64 {
	switch a {
	case overlay.AlignLeft:
		return left + padding
	case overlay.AlignRight:
		return left + width - padding
	default:
		return left + width/2
	}
}

// logoRect places the logo box left, centered or right.
func logoRect(m metrics, a overlay.Alignment, left, top, width float64) *Rect {
	x := left + width/2 - m.logoSize/2
	switch a {
	case overlay.AlignLeft:
		x = left + m.padding
	case overlay.AlignRight:
		x = left + width - m.padding - m.logoSize
	}
	return &Rect{X: x, Y: top + m.logoTop, W: m.logoSize, H: m.logoSize}
}

func primaryStyle(t Target, o overlay.Overlay) TextStyle {
	return TextStyle{
		Size:   FontSizeFor(t, o.FontSize),
		Bold:   o.Emphasis.Bold,
		Italic: o.Emphasis.Italic,
	}
}

// headerBlock lays out the header inside [left, left+width] starting at top.
func headerBlock(t Target, o overlay.Overlay, left, top, width float64, withLogo bool) Block {
	m := metricsFor(t)
	b := Block{Top: top, Height: HeaderHeight(t, withLogo)}
	x := anchorX(o.Alignment, left, width, m.padding)
	baseline := top + m.baseline
	if withLogo {
		b.Logo = logoRect(m, o.Alignment, left, top, width)
		baseline = top + m.baselineLogo
	}
	b.Lines = append(b.Lines, TextLine{
		Text: o.Text, X: x, Baseline: baseline, Align: o.Alignment, Style: primaryStyle(t, o),
	})
	for i, line := range o.SecondaryLines() {
		b.Lines = append(b.Lines, TextLine{
			Text:     line,
			X:        x,
			Baseline: baseline + float64(i+1)*m.lineStep,
			Align:    o.Alignment,
			Style:    TextStyle{Size: m.secondary},
		})
	}
	return b
}

// footerBlock lays out the footer inside [left, left+width] starting at top.
func footerBlock(t Target, o overlay.Overlay, left, top, width float64) Block {
	m := metricsFor(t)
	b := Block{Top: top, Height: m.footerHeight}
	x := anchorX(o.Alignment, left, width, m.padding)
	b.Lines = append(b.Lines, TextLine{
		Text: o.Text, X: x, Baseline: top + m.footerBaseline, Align: o.Alignment, Style: primaryStyle(t, o),
	})
	for i, line := range o.SecondaryLines() {
		b.Lines = append(b.Lines, TextLine{
			Text:     line,
			X:        x,
			Baseline: top + m.footerBaseline + float64(i+1)*m.footerStep,
			Align:    o.Alignment,
			Style:    TextStyle{Size: m.secondary},
		})
	}
	return b
}

// ComputeLayout stacks header, image at natural size and footer. withLogo
// must reflect whether the logo actually loaded, so a failed logo produces
// the same geometry as no logo at all.
func ComputeLayout(t Target, tpl overlay.Templates, imageW, imageH float64, withLogo bool) Layout {
	header := headerBlock(t, tpl.Header, 0, 0, imageW, withLogo)
	img := Rect{X: 0, Y: header.Bottom(), W: imageW, H: imageH}
	footer := footerBlock(t, tpl.Footer, 0, img.Y+img.H, imageW)
	return Layout{
		Target: t,
		Width:  imageW,
		Height: footer.Bottom(),
		Header: header,
		Image:  img,
		Footer: footer,
		Rules:  []float64{header.Bottom(), img.Y + img.H},
	}
}
