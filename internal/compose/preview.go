package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-rx/internal/overlay"
)

// StyledLine is one line of text with its inline CSS.
type StyledLine struct {
	Text  string `json:"text"`
	Style string `json:"style"`
}

// PreviewBlock describes a header or footer for on-screen rendering.
type PreviewBlock struct {
	Style     string       `json:"style"`
	Lines     []StyledLine `json:"lines"`
	LogoSrc   string       `json:"logo_src,omitempty"`
	LogoStyle string       `json:"logo_style,omitempty"`
}

// PreviewImage is the prescription image placed between the overlays.
type PreviewImage struct {
	Src   string `json:"src"`
	Style string `json:"style"`
}

// Preview is a declarative description of the on-screen composition. A
// logo that fails to load in the browser simply disappears; the header
// keeps its box.
type Preview struct {
	Header PreviewBlock `json:"header"`
	Image  PreviewImage `json:"image"`
	Footer PreviewBlock `json:"footer"`
}

// RenderPreview describes the artifact with its overlays for a browser. It
// loads no images; ctx scopes the reference rewriting.
func (e *Engine) RenderPreview(ctx context.Context, art Artifact, tpl overlay.Templates) Preview {
	p := Preview{
		Header: previewBlock(tpl.Header, HeaderHeight(TargetScreen, tpl.Header.HasLogo()), "border-bottom"),
		Image: PreviewImage{
			Src:   e.browserRef(ctx, art.SourceImage),
			Style: "display:block;max-width:100%;height:auto;margin:0 auto",
		},
		Footer: previewBlock(tpl.Footer, pixelMetrics.footerHeight, "border-top"),
	}
	if tpl.Header.HasLogo() {
		src := e.browserRef(ctx, tpl.Header.Logo.Ref)
		if src == "" {
			return p
		}
		m := pixelMetrics
		p.Header.LogoSrc = src
		p.Header.LogoStyle = fmt.Sprintf("height:%gpx;width:auto;max-width:%gpx;object-fit:contain;align-self:%s;margin-bottom:%gpx",
			m.logoSize, m.logoSize*3, specFor(tpl.Header.Alignment).flex, m.logoTop)
	}
	return p
}

func previewBlock(o overlay.Overlay, minHeight float64, border string) PreviewBlock {
	spec := specFor(o.Alignment)
	m := pixelMetrics
	b := PreviewBlock{
		Style: fmt.Sprintf("display:flex;flex-direction:column;justify-content:center;align-items:%s;text-align:%s;min-height:%gpx;padding:0 %gpx;%s:1px solid #cccccc;box-sizing:border-box",
			spec.flex, spec.textAlign, minHeight, m.padding, border),
	}
	b.Lines = append(b.Lines, StyledLine{
		Text:  o.Text,
		Style: cssText(primaryStyle(TargetScreen, o), spec.textAlign),
	})
	for _, line := range o.SecondaryLines() {
		b.Lines = append(b.Lines, StyledLine{
			Text:  line,
			Style: cssText(TextStyle{Size: m.secondary}, spec.textAlign),
		})
	}
	return b
}

func cssText(s TextStyle, align string) string {
	weight, style := "normal", "normal"
	if s.Bold {
		weight = "bold"
	}
	if s.Italic {
		style = "italic"
	}
	return strings.Join([]string{
		fmt.Sprintf("font-size:%gpx", s.Size),
		"font-weight:" + weight,
		"font-style:" + style,
		"text-align:" + align,
		"margin:0",
	}, ";")
}
