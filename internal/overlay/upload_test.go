package overlay

import (
	"errors"
	"testing"
)

func TestValidateLogoUpload(t *testing.T) {
	tests := []struct {
		name        string
		size        int64
		contentType string
		constraint  Constraint
	}{
		{"png ok", 1024, "image/png", ""},
		{"jpeg alias ok", 1024, "image/jpg", ""},
		{"svg with params ok", 10, "image/svg+xml; charset=utf-8", ""},
		{"exactly at limit", MaxLogoBytes, "image/jpeg", ""},
		{"too large", MaxLogoBytes + 1, "image/png", ConstraintSize},
		{"gif rejected", 10, "image/gif", ConstraintType},
		{"empty type rejected", 10, "", ConstraintType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLogoUpload(tt.size, tt.contentType, 0)
			if tt.constraint == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidUpload) {
				t.Fatalf("expected ErrInvalidUpload, got %v", err)
			}
			var uploadErr *InvalidUploadError
			if !errors.As(err, &uploadErr) {
				t.Fatalf("expected *InvalidUploadError, got %T", err)
			}
			if uploadErr.Constraint != tt.constraint {
				t.Fatalf("expected constraint %s, got %s", tt.constraint, uploadErr.Constraint)
			}
		})
	}
}

func TestValidateLogoUploadCustomLimit(t *testing.T) {
	if err := ValidateLogoUpload(2048, "image/png", 1024); !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected size rejection under custom limit, got %v", err)
	}
}

func TestNormalizeLogoType(t *testing.T) {
	if got, ok := NormalizeLogoType("IMAGE/JPG"); !ok || got != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %q %v", got, ok)
	}
}
