package prescriptions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for prescription storage
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, clinicID, id string) (*Prescription, error)
	ListByPatient(ctx context.Context, clinicID, patientID string) ([]*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	SetRenderedImage(ctx context.Context, clinicID, id, ref string) error
}

// InMemoryRepository keeps prescriptions in a map
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Prescription
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Prescription)}
}

func (r *InMemoryRepository) Create(ctx context.Context, p *Prescription) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.mu.Lock()
	r.items[p.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, clinicID, id string) (*Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrPrescriptionNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) ListByPatient(ctx context.Context, clinicID, patientID string) ([]*Prescription, error) {
	r.mu.RLock()
	out := []*Prescription{}
	for _, p := range r.items {
		if p.ClinicID == clinicID && p.PatientID == patientID {
			cp := *p
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[p.ID]
	if !ok || existing.ClinicID != p.ClinicID {
		return ErrPrescriptionNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	r.items[p.ID] = &cp
	return nil
}

func (r *InMemoryRepository) SetRenderedImage(ctx context.Context, clinicID, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok || p.ClinicID != clinicID {
		return ErrPrescriptionNotFound
	}
	p.RenderedImage = ref
	p.UpdatedAt = time.Now().UTC()
	return nil
}
