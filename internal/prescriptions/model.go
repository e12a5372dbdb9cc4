package prescriptions

import (
	"strings"
	"time"

	"github.com/wolfman30/clinic-rx/internal/compose"
	"github.com/wolfman30/clinic-rx/internal/patients"
)

const dateLayout = "2006-01-02"

// Prescription is a persisted prescription paired with its captured image.
type Prescription struct {
	ID            string    `json:"id"`
	ClinicID      string    `json:"clinic_id"`
	PatientID     string    `json:"patient_id"`
	SourceImage   string    `json:"source_image"`
	Notes         string    `json:"notes,omitempty"`
	FeeCents      int64     `json:"fee_cents"`
	Date          time.Time `json:"date"`
	RenderedImage string    `json:"rendered_image,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Artifact is the composition input for this prescription.
func (p *Prescription) Artifact() compose.Artifact {
	return compose.Artifact{SourceImage: p.SourceImage, Notes: p.Notes, Date: p.Date}
}

// CreatePrescriptionRequest is the request body for saving a prescription.
type CreatePrescriptionRequest struct {
	ClinicID    string `json:"-"`
	PatientID   string `json:"patient_id"`
	SourceImage string `json:"source_image"`
	Notes       string `json:"notes"`
	FeeCents    int64  `json:"fee_cents"`
	Date        string `json:"date"`
}

// Validate rejects a prescription without a drawn image.
func (r *CreatePrescriptionRequest) Validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.SourceImage = strings.TrimSpace(r.SourceImage)
	if strings.TrimSpace(r.ClinicID) == "" {
		return ErrMissingClinicID
	}
	if r.PatientID == "" {
		return ErrMissingPatientID
	}
	if err := validateSource(r.SourceImage); err != nil {
		return err
	}
	if r.FeeCents < 0 {
		return ErrInvalidFee
	}
	if _, err := r.ParsedDate(); err != nil {
		return err
	}
	return nil
}

// ParsedDate defaults to today (UTC) when no date is given.
func (r *CreatePrescriptionRequest) ParsedDate() (time.Time, error) {
	raw := strings.TrimSpace(r.Date)
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// UpdatePrescriptionRequest changes any subset of the editable fields.
type UpdatePrescriptionRequest struct {
	SourceImage *string `json:"source_image"`
	Notes       *string `json:"notes"`
	FeeCents    *int64  `json:"fee_cents"`
}

// Apply validates and copies the set fields onto p.
func (r *UpdatePrescriptionRequest) Apply(p *Prescription) error {
	if r.SourceImage != nil {
		src := strings.TrimSpace(*r.SourceImage)
		if err := validateSource(src); err != nil {
			return err
		}
		p.SourceImage = src
	}
	if r.FeeCents != nil {
		if *r.FeeCents < 0 {
			return ErrInvalidFee
		}
		p.FeeCents = *r.FeeCents
	}
	if r.Notes != nil {
		p.Notes = *r.Notes
	}
	return nil
}

// Fields names the fields the request changes.
func (r *UpdatePrescriptionRequest) Fields() []string {
	var fields []string
	if r.SourceImage != nil {
		fields = append(fields, "source_image")
	}
	if r.Notes != nil {
		fields = append(fields, "notes")
	}
	if r.FeeCents != nil {
		fields = append(fields, "fee_cents")
	}
	return fields
}

func validateSource(src string) error {
	switch {
	case src == "":
		return ErrMissingSourceImage
	case strings.HasPrefix(src, "data:image/"), strings.HasPrefix(src, "s3://"):
		return nil
	}
	return ErrInvalidSourceImage
}

func toComposePatient(p *patients.Patient) compose.Patient {
	return compose.Patient{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		MRNumber:    p.MRNumber,
		Gender:      p.Gender,
		DateOfBirth: p.DateOfBirth,
	}
}
