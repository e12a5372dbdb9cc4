package payments

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusRefunded Status = "refunded"
	StatusVoid     Status = "void"
)

// Method is how the patient paid.
type Method string

const (
	MethodCash      Method = "cash"
	MethodCard      Method = "card"
	MethodInsurance Method = "insurance"
	MethodOther     Method = "other"
)

var (
	ErrMissingClinicID     = errors.New("clinic id is required")
	ErrMissingPrescription = errors.New("prescription id is required")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidMethod       = errors.New("method must be cash, card, insurance or other")
	ErrInvalidStatus       = errors.New("status must be pending, paid, refunded or void")
	ErrInvalidTransition   = errors.New("payment status change not allowed")
	ErrPaymentNotFound     = errors.New("payment not found")
)

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusVoid},
	StatusPaid:    {StatusRefunded},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Payment is a payment recorded against a prescription.
type Payment struct {
	ID             string     `json:"id"`
	ClinicID       string     `json:"clinic_id"`
	PrescriptionID string     `json:"prescription_id"`
	AmountCents    int64      `json:"amount_cents"`
	Method         Method     `json:"method"`
	Status         Status     `json:"status"`
	Reference      string     `json:"reference,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreatePaymentRequest is the request body for recording a payment.
type CreatePaymentRequest struct {
	ClinicID       string `json:"-"`
	PrescriptionID string `json:"-"`
	AmountCents    int64  `json:"amount_cents"`
	Method         Method `json:"method"`
	Status         Status `json:"status"`
	Reference      string `json:"reference"`
}

// Validate normalizes method/status and checks required fields. A missing
// status records the payment as paid.
func (r *CreatePaymentRequest) Validate() error {
	r.Method = Method(strings.ToLower(strings.TrimSpace(string(r.Method))))
	r.Status = Status(strings.ToLower(strings.TrimSpace(string(r.Status))))
	r.Reference = strings.TrimSpace(r.Reference)
	if r.Status == "" {
		r.Status = StatusPaid
	}
	if strings.TrimSpace(r.ClinicID) == "" {
		return ErrMissingClinicID
	}
	if strings.TrimSpace(r.PrescriptionID) == "" {
		return ErrMissingPrescription
	}
	if r.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	switch r.Method {
	case MethodCash, MethodCard, MethodInsurance, MethodOther:
	default:
		return ErrInvalidMethod
	}
	if r.Status != StatusPending && r.Status != StatusPaid {
		return ErrInvalidStatus
	}
	return nil
}

// Summary totals the payments of one prescription.
type Summary struct {
	PaidCents     int64 `json:"paid_cents"`
	PendingCents  int64 `json:"pending_cents"`
	RefundedCents int64 `json:"refunded_cents"`
}

// Summarize totals payments by status.
func Summarize(list []*Payment) Summary {
	var s Summary
	for _, p := range list {
		switch p.Status {
		case StatusPaid:
			s.PaidCents += p.AmountCents
		case StatusPending:
			s.PendingCents += p.AmountCents
		case StatusRefunded:
			s.RefundedCents += p.AmountCents
		}
	}
	return s
}
