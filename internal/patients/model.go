package patients

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Patient is a clinic's patient record.
type Patient struct {
	ID          string     `json:"id"`
	ClinicID    string     `json:"clinic_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	MRNumber    string     `json:"mr_number"`
	Gender      string     `json:"gender,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// FullName joins first and last name.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CreatePatientRequest is the request body for registering a patient.
type CreatePatientRequest struct {
	ClinicID    string `json:"-"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	MRNumber    string `json:"mr_number"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Phone       string `json:"phone"`
}

// Validate trims the request and checks required fields.
func (r *CreatePatientRequest) Validate() error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.MRNumber = strings.TrimSpace(r.MRNumber)
	r.Gender = strings.TrimSpace(r.Gender)
	r.Phone = strings.TrimSpace(r.Phone)

	if strings.TrimSpace(r.ClinicID) == "" {
		return ErrMissingClinicID
	}
	if r.FirstName == "" || r.LastName == "" {
		return ErrInvalidName
	}
	if r.MRNumber == "" {
		return ErrMissingMRNumber
	}
	if _, err := r.ParsedDateOfBirth(); err != nil {
		return err
	}
	return nil
}

// ParsedDateOfBirth returns nil when no date of birth was given.
func (r *CreatePatientRequest) ParsedDateOfBirth() (*time.Time, error) {
	raw := strings.TrimSpace(r.DateOfBirth)
	if raw == "" {
		return nil, nil
	}
	dob, err := time.Parse(dateLayout, raw)
	if err != nil || dob.After(time.Now().UTC()) {
		return nil, ErrInvalidDateOfBirth
	}
	return &dob, nil
}

// ListFilter pages and narrows a patient listing.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (p *Patient) matches(search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, field := range []string{p.FirstName, p.LastName, p.MRNumber} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
