package compose

import (
	"fmt"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
)

type fontKey struct {
	bold, italic bool
}

var (
	fontsOnce sync.Once
	fonts     map[fontKey]*truetype.Font
	fontsErr  error
)

// parsedFonts parses the embedded Go fonts once. Parsed fonts are safe to
// share; faces are not, so each composition builds its own.
func parsedFonts() (map[fontKey]*truetype.Font, error) {
	fontsOnce.Do(func() {
		sources := map[fontKey][]byte{
			{false, false}: goregular.TTF,
			{true, false}:  gobold.TTF,
			{false, true}:  goitalic.TTF,
			{true, true}:   gobolditalic.TTF,
		}
		fonts = make(map[fontKey]*truetype.Font, len(sources))
		for key, ttf := range sources {
			f, err := truetype.Parse(ttf)
			if err != nil {
				fontsErr = fmt.Errorf("compose: parse font: %w", err)
				return
			}
			fonts[key] = f
		}
	})
	return fonts, fontsErr
}

// faceCache hands out faces for a single composition.
type faceCache struct {
	faces map[TextStyle]font.Face
}

func newFaceCache() *faceCache {
	return &faceCache{faces: make(map[TextStyle]font.Face)}
}

func (c *faceCache) face(style TextStyle) (font.Face, error) {
	if f, ok := c.faces[style]; ok {
		return f, nil
	}
	all, err := parsedFonts()
	if err != nil {
		return nil, err
	}
	f := truetype.NewFace(all[fontKey{style.Bold, style.Italic}], &truetype.Options{
		Size:    style.Size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	c.faces[style] = f
	return f, nil
}

func (c *faceCache) Close() {
	for _, f := range c.faces {
		_ = f.Close()
	}
}
