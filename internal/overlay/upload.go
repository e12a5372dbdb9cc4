package overlay

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// MaxLogoBytes is the largest accepted logo upload.
const MaxLogoBytes int64 = 2 << 20

// ErrInvalidUpload matches every InvalidUploadError via errors.Is.
var ErrInvalidUpload = errors.New("invalid upload")

// Constraint names the upload rule that was violated.
type Constraint string

const (
	ConstraintSize Constraint = "size"
	ConstraintType Constraint = "type"
)

// InvalidUploadError rejects a logo before any load is attempted.
type InvalidUploadError struct {
	Constraint Constraint
	Message    string
}

func (e *InvalidUploadError) Error() string {
	return fmt.Sprintf("invalid upload (%s): %s", e.Constraint, e.Message)
}

func (e *InvalidUploadError) Is(target error) bool {
	return target == ErrInvalidUpload
}

var allowedLogoTypes = map[string]string{
	"image/jpeg":    "image/jpeg",
	"image/jpg":     "image/jpeg",
	"image/pjpeg":   "image/jpeg",
	"image/png":     "image/png",
	"image/svg+xml": "image/svg+xml",
}

// NormalizeLogoType returns the canonical MIME type for an accepted logo
// content type.
func NormalizeLogoType(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	canonical, ok := allowedLogoTypes[mediaType]
	return canonical, ok
}

// ValidateLogoUpload checks size and type. A non-positive limit falls back to
// MaxLogoBytes.
func ValidateLogoUpload(size int64, contentType string, limit int64) error {
	if limit <= 0 {
		limit = MaxLogoBytes
	}
	if size > limit {
		return &InvalidUploadError{
			Constraint: ConstraintSize,
			Message:    fmt.Sprintf("logo is %d bytes; the limit is %d bytes", size, limit),
		}
	}
	if _, ok := NormalizeLogoType(contentType); !ok {
		return &InvalidUploadError{
			Constraint: ConstraintType,
			Message:    fmt.Sprintf("logo type %q is not one of jpeg, png, svg", contentType),
		}
	}
	return nil
}
