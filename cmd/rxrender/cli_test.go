package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writePNG writes a solid white image for the pipeline to compose.
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newCLIApp(&stdout, &stderr).Run(append([]string{"rxrender"}, args...))
	return stdout.String(), err
}

func TestCaptureCommand(t *testing.T) {
	dir := t.TempDir()
	recording := map[string]any{
		"width":  100,
		"height": 80,
		"events": []map[string]any{
			{"type": "down", "x": 10, "y": 10},
			{"type": "move", "x": 50, "y": 40},
			{"type": "up"},
		},
	}
	data, _ := json.Marshal(recording)
	in := filepath.Join(dir, "rec.json")
	if err := os.WriteFile(in, data, 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "rx.png")

	if _, err := run(t, "capture", "--in", in, "--out", out); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 80 {
		t.Fatalf("expected 100x80, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestComposeCommandWritesFlattenedImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rx.png")
	writePNG(t, src, 600, 800)
	out := filepath.Join(dir, "out.png")

	if _, err := run(t, "compose", "--image", src, "--date", "2024-03-05", "--out", out); err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 600 || cfg.Height != 900 {
		t.Fatalf("expected 600x900, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDocumentCommandDefaultName(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rx.png")
	writePNG(t, src, 300, 200)
	tplPath := filepath.Join(dir, "templates.json")
	if err := os.WriteFile(tplPath, []byte(`{"header":{"text":"Sunrise Clinic","alignment":"right"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if _, err := run(t, "document", "--image", src, "--templates", tplPath, "--mr", "MR-42", "--date", "2024-03-05"); err != nil {
		t.Fatalf("document failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "prescription-MR-42-3-5-2024.pdf"))
	if err != nil {
		t.Fatalf("expected default-named pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected pdf output")
	}
}

func TestPrintCommandToStdout(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rx.png")
	writePNG(t, src, 40, 30)

	stdout, err := run(t, "print", "--image", src, "--mr", "MR-1", "--first-name", "Ada", "--out", "-")
	if err != nil {
		t.Fatalf("print failed: %v", err)
	}
	if !strings.Contains(stdout, "window.print()") {
		t.Fatalf("expected print script in output")
	}
	if !strings.Contains(stdout, "data:image/png;base64,") {
		t.Fatalf("expected inline source image")
	}
}

func TestLoadTemplatesDefaults(t *testing.T) {
	tpl, err := loadTemplates("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Header.Text != "Clinic Name" {
		t.Fatalf("expected default header, got %q", tpl.Header.Text)
	}
}

func TestComposeCommandInvalidDate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rx.png")
	writePNG(t, src, 10, 10)

	if _, err := run(t, "compose", "--image", src, "--date", "03/05/2024", "--out", filepath.Join(dir, "o.png")); err == nil {
		t.Fatalf("expected invalid date error")
	}
}
