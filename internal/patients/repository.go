package patients

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for patient storage
type Repository interface {
	Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error)
	GetByID(ctx context.Context, clinicID, id string) (*Patient, error)
	List(ctx context.Context, clinicID string, filter ListFilter) ([]*Patient, error)
}

// InMemoryRepository keeps patients in a map, for tests and local runs
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[string]*Patient
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients: make(map[string]*Patient),
	}
}

// Create stores a new patient, rejecting duplicate MR numbers per clinic
func (r *InMemoryRepository) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	dob, _ := req.ParsedDateOfBirth()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patients {
		if existing.ClinicID == req.ClinicID && existing.MRNumber == req.MRNumber {
			return nil, ErrDuplicateMRNumber
		}
	}
	patient := &Patient{
		ID:          uuid.New().String(),
		ClinicID:    req.ClinicID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		MRNumber:    req.MRNumber,
		Gender:      req.Gender,
		DateOfBirth: dob,
		Phone:       req.Phone,
		CreatedAt:   time.Now().UTC(),
	}
	r.patients[patient.ID] = patient
	return patient, nil
}

// GetByID retrieves a patient scoped to the clinic
func (r *InMemoryRepository) GetByID(ctx context.Context, clinicID, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patient, ok := r.patients[id]
	if !ok || patient.ClinicID != clinicID {
		return nil, ErrPatientNotFound
	}
	return patient, nil
}

// List returns the clinic's patients, newest first
func (r *InMemoryRepository) List(ctx context.Context, clinicID string, filter ListFilter) ([]*Patient, error) {
	filter = filter.normalized()

	r.mu.RLock()
	var out []*Patient
	for _, p := range r.patients {
		if p.ClinicID == clinicID && p.matches(filter.Search) {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset >= len(out) {
		return []*Patient{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
