// Package overlay holds the header and footer presentation settings applied
// to every rendered prescription.
package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which slot an overlay occupies.
type Kind string

const (
	KindHeader Kind = "header"
	KindFooter Kind = "footer"
)

// ParseKind validates a slot name.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindHeader:
		return KindHeader, nil
	case KindFooter:
		return KindFooter, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Alignment anchors text (and the header logo) horizontally.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// FontSize is the size tier of the primary text line.
type FontSize string

const (
	FontSmall  FontSize = "small"
	FontMedium FontSize = "medium"
	FontLarge  FontSize = "large"
)

var (
	ErrUnknownKind       = errors.New("overlay: unknown kind")
	ErrInvalidAlignment  = errors.New("overlay: alignment must be left, center or right")
	ErrInvalidFontSize   = errors.New("overlay: font size must be small, medium or large")
	ErrLogoNotSupported  = errors.New("overlay: only the header carries a logo")
	ErrMissingLogoSource = errors.New("overlay: logo reference required")
)

// Emphasis keeps bold and italic as independent flags.
type Emphasis struct {
	Bold   bool `json:"bold"`
	Italic bool `json:"italic"`
}

// EmphasisFromToken decodes the legacy single-token encoding.
func EmphasisFromToken(token string) Emphasis {
	t := strings.ToLower(strings.TrimSpace(token))
	return Emphasis{
		Bold:   strings.Contains(t, "bold"),
		Italic: strings.Contains(t, "italic"),
	}
}

// Logo references an encoded image used in the header.
type Logo struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// Overlay is the presentation record for one slot.
type Overlay struct {
	Kind           Kind      `json:"kind"`
	Text           string    `json:"text"`
	Address        string    `json:"address,omitempty"`
	Contact        string    `json:"contact,omitempty"`
	AdditionalInfo string    `json:"additional_info,omitempty"`
	Emphasis       Emphasis  `json:"emphasis"`
	FontSize       FontSize  `json:"font_size"`
	Alignment      Alignment `json:"alignment"`
	Logo           *Logo     `json:"logo,omitempty"`
}

// Templates pairs the two overlays read by every renderer.
type Templates struct {
	Header Overlay `json:"header"`
	Footer Overlay `json:"footer"`
}

// DefaultHeader is used until a clinic saves its own header.
func DefaultHeader() Overlay {
	return Overlay{
		Kind:      KindHeader,
		Text:      "Clinic Name",
		Address:   "Clinic Address",
		Contact:   "Contact Information",
		Emphasis:  Emphasis{Bold: true},
		FontSize:  FontLarge,
		Alignment: AlignCenter,
	}
}

// DefaultFooter is used until a clinic saves its own footer.
func DefaultFooter() Overlay {
	return Overlay{
		Kind:           KindFooter,
		Text:           "Thank you for visiting",
		AdditionalInfo: "",
		FontSize:       FontSmall,
		Alignment:      AlignCenter,
	}
}

// Default returns the hard-coded defaults for a slot.
func Default(kind Kind) Overlay {
	if kind == KindFooter {
		return DefaultFooter()
	}
	return DefaultHeader()
}

// DefaultTemplates returns both default overlays.
func DefaultTemplates() Templates {
	return Templates{Header: DefaultHeader(), Footer: DefaultFooter()}
}

// ToggleBold flips bold and leaves italic untouched.
func (o *Overlay) ToggleBold() {
	o.Emphasis.Bold = !o.Emphasis.Bold
}

// ToggleItalic flips italic and leaves bold untouched.
func (o *Overlay) ToggleItalic() {
	o.Emphasis.Italic = !o.Emphasis.Italic
}

// SetAlignment validates and applies an alignment.
func (o *Overlay) SetAlignment(value Alignment) error {
	if !value.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlignment, value)
	}
	o.Alignment = value
	return nil
}

// SetFontSize validates and applies a size tier.
func (o *Overlay) SetFontSize(value FontSize) error {
	if !value.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFontSize, value)
	}
	o.FontSize = value
	return nil
}

// SetLogo stores or, when logo is nil, clears the header logo. The previous
// reference is dropped entirely so a cleared logo never reappears.
func (o *Overlay) SetLogo(logo *Logo) error {
	if o.Kind == KindFooter {
		return ErrLogoNotSupported
	}
	if logo == nil {
		o.Logo = nil
		return nil
	}
	if strings.TrimSpace(logo.Ref) == "" {
		return ErrMissingLogoSource
	}
	cp := *logo
	o.Logo = &cp
	return nil
}

// HasLogo reports whether a logo reference is set.
func (o Overlay) HasLogo() bool {
	return o.Logo != nil && o.Logo.Ref != ""
}

// SecondaryLines returns the smaller lines drawn under the primary text.
func (o Overlay) SecondaryLines() []string {
	if o.Kind == KindFooter {
		if s := strings.TrimSpace(o.AdditionalInfo); s != "" {
			return []string{s}
		}
		return nil
	}
	var parts []string
	for _, s := range []string{o.Address, o.Contact} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return []string{strings.Join(parts, " | ")}
}

// Normalize fills zero or unknown enum values with defaults for the slot.
func (o *Overlay) Normalize(kind Kind) {
	def := Default(kind)
	o.Kind = kind
	if !o.Alignment.Valid() {
		o.Alignment = def.Alignment
	}
	if !o.FontSize.Valid() {
		o.FontSize = def.FontSize
	}
	if kind == KindFooter {
		o.Logo = nil
	}
}

// Validate checks enum fields without modifying the overlay.
func (o Overlay) Validate() error {
	if o.Kind != KindHeader && o.Kind != KindFooter {
		return fmt.Errorf("%w: %q", ErrUnknownKind, o.Kind)
	}
	if !o.Alignment.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlignment, o.Alignment)
	}
	if !o.FontSize.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFontSize, o.FontSize)
	}
	if o.Kind == KindFooter && o.Logo != nil {
		return ErrLogoNotSupported
	}
	return nil
}

// UnmarshalJSON accepts the legacy "fontStyle" token alongside the two-flag
// emphasis object.
func (o *Overlay) UnmarshalJSON(data []byte) error {
	type alias Overlay
	aux := struct {
		*alias
		FontStyle  string `json:"fontStyle"`
		FontStyle2 string `json:"font_style"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	token := aux.FontStyle
	if token == "" {
		token = aux.FontStyle2
	}
	if token != "" && o.Emphasis == (Emphasis{}) {
		o.Emphasis = EmphasisFromToken(token)
	}
	return nil
}

// Valid reports whether a is a known alignment.
func (a Alignment) Valid() bool {
	return a == AlignLeft || a == AlignCenter || a == AlignRight
}

// Valid reports whether s is a known size tier.
func (s FontSize) Valid() bool {
	return s == FontSmall || s == FontMedium || s == FontLarge
}
