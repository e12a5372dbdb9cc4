package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-rx/internal/overlay"
)

// Page geometry in millimetres (A4 portrait).
const (
	pageMargin         = 15.0
	footerFromBottom   = 20.0
	minFooterClearance = 30.0
	bodyFontSize       = 11.0
	bodyLineHeight     = 6.0
	notesLineHeight    = 5.0
	pdfFontFamily      = "Helvetica"
)

// Document is a paginated, printable prescription.
type Document struct {
	PDF             []byte
	Pages           int
	Header          Block
	Footer          Block
	FooterOnNewPage bool
	LogoDegraded    bool
}

// ComposeDocument lays out header, patient block, prescription image,
// notes and footer on A4 pages. The footer moves to a fresh page when less
// than minFooterClearance remains below the content.
func (e *Engine) ComposeDocument(ctx context.Context, art Artifact, patient Patient, tpl overlay.Templates) (result *Document, err error) {
	start := time.Now()
	defer func() { e.observe(TargetDocument, start, err) }()

	ctx, span := composeTracer.Start(ctx, "compose.document")
	defer span.End()

	in, err := e.loadInputs(ctx, TargetDocument, art.SourceImage, tpl.Header)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetDrawColor(0xcc, 0xcc, 0xcc)
	pdf.SetLineWidth(0.3)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	header := headerBlock(TargetDocument, tpl.Header, pageMargin, pageMargin, contentW, in.logo != nil)
	if in.logo != nil && header.Logo != nil {
		if err := placeLogo(pdf, in.logo, *header.Logo, tpl.Header.Alignment); err != nil {
			return nil, err
		}
	}
	writeLines(pdf, tr, header.Lines)
	pdf.Line(pageMargin, header.Bottom(), pageW-pageMargin, header.Bottom())

	y := header.Bottom() + bodyLineHeight
	pdf.SetFont(pdfFontFamily, "", bodyFontSize)
	for _, line := range patientLines(patient, art.Date) {
		pdf.Text(pageMargin, y, tr(line))
		y += bodyLineHeight
	}

	y, err = placeSource(pdf, in.source, y, contentW, pageH)
	if err != nil {
		return nil, err
	}

	if art.Notes != "" {
		pdf.SetXY(pageMargin, y+2)
		pdf.SetFont(pdfFontFamily, "B", bodyFontSize)
		pdf.CellFormat(contentW, bodyLineHeight, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont(pdfFontFamily, "", bodyFontSize)
		pdf.MultiCell(contentW, notesLineHeight, tr(art.Notes), "", "L", false)
		y = pdf.GetY()
	}

	footerTop := pageH - footerFromBottom
	onNewPage := pageH-y < minFooterClearance
	pdf.SetAutoPageBreak(false, 0)
	if onNewPage {
		pdf.AddPage()
	}
	footer := footerBlock(TargetDocument, tpl.Footer, pageMargin, footerTop, contentW)
	pdf.Line(pageMargin, footerTop, pageW-pageMargin, footerTop)
	writeLines(pdf, tr, footer.Lines)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("compose: write pdf: %w", err)
	}
	pages := pdf.PageNo()
	span.SetAttributes(
		attribute.Int("compose.pages", pages),
		attribute.Bool("compose.footer_new_page", onNewPage),
	)
	return &Document{
		PDF:             buf.Bytes(),
		Pages:           pages,
		Header:          header,
		Footer:          footer,
		FooterOnNewPage: onNewPage,
		LogoDegraded:    tpl.Header.HasLogo() && in.logo == nil,
	}, nil
}

func patientLines(p Patient, date time.Time) []string {
	lines := []string{
		"Patient: " + p.FullName(),
		"MR Number: " + p.MRNumber,
		"Date: " + LocaleDate(date),
	}
	if p.Gender != "" {
		lines = append(lines, "Gender: "+p.Gender)
	}
	if p.DateOfBirth != nil {
		lines = append(lines, "Date of Birth: "+LocaleDate(*p.DateOfBirth))
	}
	return lines
}

func pdfStyle(s TextStyle) string {
	style := ""
	if s.Bold {
		style += "B"
	}
	if s.Italic {
		style += "I"
	}
	return style
}

// writeLines draws each line so that X is its left edge, center or right
// edge according to its alignment.
func writeLines(pdf *gofpdf.Fpdf, tr func(string) string, lines []TextLine) {
	for _, line := range lines {
		if line.Text == "" {
			continue
		}
		text := tr(line.Text)
		pdf.SetFont(pdfFontFamily, pdfStyle(line.Style), line.Style.Size)
		x := line.X - specFor(line.Align).anchor*pdf.GetStringWidth(text)
		pdf.Text(x, line.Baseline, text)
	}
}

// placeSource scales the prescription to the content width and returns the
// y coordinate below it. Images taller than a page are shrunk to fit one.
func placeSource(pdf *gofpdf.Fpdf, img image.Image, y, contentW, pageH float64) (float64, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return y, nil
	}
	w := contentW
	h := float64(b.Dy()) * w / float64(b.Dx())
	maxH := pageH - 2*pageMargin
	if h > maxH {
		h = maxH
		w = float64(b.Dx()) * h / float64(b.Dy())
	}
	y += 2
	if y+h > pageH-pageMargin {
		pdf.AddPage()
		y = pageMargin
	}
	x := pageMargin + (contentW-w)/2
	if err := embedImage(pdf, "prescription", img, x, y, w, h); err != nil {
		return y, err
	}
	return y + h + 2, nil
}

func placeLogo(pdf *gofpdf.Fpdf, img image.Image, box Rect, align overlay.Alignment) error {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil
	}
	scale := box.W / float64(b.Dx())
	if s := box.H / float64(b.Dy()); s < scale {
		scale = s
	}
	w, h := float64(b.Dx())*scale, float64(b.Dy())*scale
	x := box.X + (box.W-w)/2
	switch align {
	case overlay.AlignLeft:
		x = box.X
	case overlay.AlignRight:
		x = box.X + box.W - w
	}
	return embedImage(pdf, "logo", img, x, box.Y+(box.H-h)/2, w, h)
}

// embedImage re-encodes img as an 8-bit RGBA PNG, which gofpdf always accepts.
func embedImage(pdf *gofpdf.Fpdf, name string, img image.Image, x, y, w, h float64) error {
	rgba := image.NewNRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return fmt.Errorf("compose: encode %s: %w", name, err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, &buf)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("compose: embed %s: %w", name, err)
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return nil
}
