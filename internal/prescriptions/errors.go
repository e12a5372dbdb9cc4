package prescriptions

import (
	"errors"
	"fmt"
)

var (
	ErrMissingClinicID      = errors.New("clinic id is required")
	ErrMissingPatientID     = errors.New("patient id is required")
	ErrMissingSourceImage   = errors.New("a drawn prescription image is required before saving")
	ErrInvalidSourceImage   = errors.New("prescription image must be a data URL or a stored image reference")
	ErrForeignSourceImage   = errors.New("prescription image is not stored for this clinic")
	ErrInvalidFee           = errors.New("fee cannot be negative")
	ErrInvalidDate          = errors.New("date must be YYYY-MM-DD")
	ErrPrescriptionNotFound = errors.New("prescription not found")
)

// PersistenceError wraps a storage failure. Its message is shown to the
// caller as is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s prescription: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func isValidation(err error) bool {
	for _, target := range []error{
		ErrMissingClinicID, ErrMissingPatientID, ErrMissingSourceImage,
		ErrInvalidSourceImage, ErrForeignSourceImage, ErrInvalidFee, ErrInvalidDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
