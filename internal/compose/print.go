package compose

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/wolfman30/clinic-rx/internal/overlay"
)

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: A4 portrait; margin: 15mm; }
body { font-family: Helvetica, Arial, sans-serif; margin: 0; color: #000; }
.patient p { margin: 2px 0; font-size: 14px; }
.notes { white-space: pre-wrap; font-size: 14px; }
</style>
</head>
<body>
<header style="{{.Header.Style}}">
{{- if .Header.LogoSrc}}
<img src="{{.Header.LogoSrc}}" alt="" style="{{.Header.LogoStyle}}" onerror="this.remove()">
{{- end}}
{{- range .Header.Lines}}
<p style="{{.Style}}">{{.Text}}</p>
{{- end}}
</header>
<section class="patient">
{{- range .PatientLines}}
<p>{{.}}</p>
{{- end}}
</section>
<img src="{{.Image.Src}}" alt="Prescription" style="{{.Image.Style}}">
{{- if .Notes}}
<section class="notes"><strong>Notes</strong>
{{.Notes}}</section>
{{- end}}
<footer style="{{.Footer.Style}}">
{{- range .Footer.Lines}}
<p style="{{.Style}}">{{.Text}}</p>
{{- end}}
</footer>
<script>setTimeout(function () { window.print(); }, {{.DelayMS}});</script>
</body>
</html>
`))

type printLine struct {
	Text  string
	Style template.CSS
}

type printBlock struct {
	Style     template.CSS
	Lines     []printLine
	LogoSrc   any
	LogoStyle template.CSS
}

type printImage struct {
	Src   any
	Style template.CSS
}

type printView struct {
	Title        string
	Header       printBlock
	Image        printImage
	PatientLines []string
	Notes        string
	Footer       printBlock
	DelayMS      int64
}

// RenderPrintDocument produces a standalone HTML page that opens the
// browser print dialog once it has had PrintDelay to lay out.
func (e *Engine) RenderPrintDocument(ctx context.Context, art Artifact, patient Patient, tpl overlay.Templates) ([]byte, error) {
	preview := e.RenderPreview(ctx, art, tpl)
	view := printView{
		Title:        DownloadName(patient.MRNumber, art.Date, "pdf"),
		Header:       toPrintBlock(preview.Header),
		Image:        printImage{Src: imageURL(preview.Image.Src), Style: template.CSS(preview.Image.Style)},
		PatientLines: patientLines(patient, art.Date),
		Notes:        art.Notes,
		Footer:       toPrintBlock(preview.Footer),
		DelayMS:      e.printDelay.Milliseconds(),
	}
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("compose: render print document: %w", err)
	}
	return buf.Bytes(), nil
}

func toPrintBlock(b PreviewBlock) printBlock {
	out := printBlock{
		Style:     template.CSS(b.Style),
		LogoSrc:   imageURL(b.LogoSrc),
		LogoStyle: template.CSS(b.LogoStyle),
	}
	for _, l := range b.Lines {
		out.Lines = append(out.Lines, printLine{Text: l.Text, Style: template.CSS(l.Style)})
	}
	return out
}

// imageURL trusts only image data URLs and web URLs. Anything else is left to
// html/template, which neutralizes unsafe schemes.
func imageURL(ref string) any {
	lower := strings.ToLower(strings.TrimSpace(ref))
	if strings.HasPrefix(lower, "data:image/") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return template.URL(ref)
	}
	return ref
}
