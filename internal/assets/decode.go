// Package assets resolves image references (data URLs, HTTP URLs, S3
// objects) into decoded images and stores uploaded images in S3.
package assets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/webp" // register decoder
)

var (
	ErrUnsupportedRef = errors.New("assets: unsupported image reference")
	ErrMalformedData  = errors.New("assets: malformed data url")
	ErrNotFound       = errors.New("assets: image not found")
	ErrForeignRef     = errors.New("assets: image reference outside clinic storage")
	ErrImageTooLarge  = errors.New("assets: image dimensions exceed the pixel budget")
)

const (
	defaultSVGSize = 256
	maxSVGSize     = 2048
)

// MaxPixels bounds width*height of any decoded raster image.
const MaxPixels = 25_000_000

// Decode turns encoded bytes into an image. SVG input is rasterized at its
// view box size. Raster headers are checked against MaxPixels before any
// pixel data is allocated.
func Decode(data []byte, contentType string) (image.Image, error) {
	if IsSVG(contentType, data) {
		return rasterizeSVG(data)
	}
	if err := CheckDimensions(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("assets: decode image: %w", err)
	}
	return img, nil
}

// CheckDimensions reads only the image header and rejects empty images and
// images larger than MaxPixels.
func CheckDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("assets: decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("assets: empty image %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// IsSVG reports whether the payload is an SVG document.
func IsSVG(contentType string, data []byte) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/svg") {
		return true
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	sniffed := http.DetectContentType(head)
	if !strings.HasPrefix(sniffed, "text/") {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

func rasterizeSVG(data []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("assets: parse svg: %w", err)
	}
	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		w, h = defaultSVGSize, defaultSVGSize
	}
	if w > maxSVGSize || h > maxSVGSize {
		scale := float64(maxSVGSize) / float64(max(w, h))
		w, h = int(float64(w)*scale), int(float64(h)*scale)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return img, nil
}

// ParseDataURL splits a base64 data URL into its media type and payload.
func ParseDataURL(ref string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return "", nil, ErrMalformedData
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrMalformedData
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformedData)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return mediaType, data, nil
}

// EncodeDataURL builds a base64 data URL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
