package patients

import "errors"

var (
	// ErrMissingClinicID is returned when a request carries no clinic scope
	ErrMissingClinicID = errors.New("clinic id is required")

	// ErrInvalidName is returned when first or last name is blank
	ErrInvalidName = errors.New("first and last name are required")

	// ErrMissingMRNumber is returned when the medical record number is blank
	ErrMissingMRNumber = errors.New("mr number is required")

	// ErrInvalidDateOfBirth is returned for unparseable or future birth dates
	ErrInvalidDateOfBirth = errors.New("date of birth must be YYYY-MM-DD and not in the future")

	// ErrDuplicateMRNumber is returned when the clinic already has the MR number
	ErrDuplicateMRNumber = errors.New("mr number already exists for this clinic")

	// ErrPatientNotFound is returned when a patient is not found
	ErrPatientNotFound = errors.New("patient not found")
)
