package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists payments.
type Repository interface {
	Create(ctx context.Context, req *CreatePaymentRequest) (*Payment, error)
	ListByPrescription(ctx context.Context, clinicID, prescriptionID string) ([]*Payment, error)
	UpdateStatus(ctx context.Context, clinicID, id string, status Status) (*Payment, error)
}

// InMemoryRepository keeps payments in a map.
type InMemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]*Payment
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{payments: make(map[string]*Payment)}
}

func (r *InMemoryRepository) Create(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &Payment{
		ID:             uuid.New().String(),
		ClinicID:       req.ClinicID,
		PrescriptionID: req.PrescriptionID,
		AmountCents:    req.AmountCents,
		Method:         req.Method,
		Status:         req.Status,
		Reference:      req.Reference,
		CreatedAt:      now,
	}
	if p.Status == StatusPaid {
		p.PaidAt = &now
	}
	r.mu.Lock()
	r.payments[p.ID] = p
	r.mu.Unlock()
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) ListByPrescription(ctx context.Context, clinicID, prescriptionID string) ([]*Payment, error) {
	r.mu.RLock()
	out := []*Payment{}
	for _, p := range r.payments {
		if p.ClinicID == clinicID && p.PrescriptionID == prescriptionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, clinicID, id string, status Status) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrPaymentNotFound
	}
	if !CanTransition(p.Status, status) {
		return nil, ErrInvalidTransition
	}
	p.Status = status
	if status == StatusPaid {
		now := time.Now().UTC()
		p.PaidAt = &now
	}
	cp := *p
	return &cp, nil
}
