package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-rx/internal/prescriptions"
	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// PrescriptionLookup confirms the prescription a payment is recorded against.
type PrescriptionLookup interface {
	Get(ctx context.Context, clinicID, id string) (*prescriptions.Prescription, error)
}

// Handler exposes payment endpoints.
type Handler struct {
	repo          Repository
	prescriptions PrescriptionLookup
	logger        *logging.Logger
}

// NewHandler creates a payments handler.
func NewHandler(repo Repository, rx PrescriptionLookup, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, prescriptions: rx, logger: logger}
}

// ListResponse is the payment listing for one prescription.
type ListResponse struct {
	Payments     []*Payment `json:"payments"`
	Summary      Summary    `json:"summary"`
	FeeCents     int64      `json:"fee_cents"`
	BalanceCents int64      `json:"balance_cents"`
}

// Create handles POST /api/prescriptions/{prescriptionID}/payments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	clinicID, rx, ok := h.prescription(w, r)
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ClinicID = clinicID
	req.PrescriptionID = rx.ID

	payment, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("payment recorded", "payment_id", payment.ID, "prescription_id", rx.ID, "amount_cents", payment.AmountCents)
	writeJSON(w, http.StatusCreated, payment)
}

// List handles GET /api/prescriptions/{prescriptionID}/payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clinicID, rx, ok := h.prescription(w, r)
	if !ok {
		return
	}
	list, err := h.repo.ListByPrescription(r.Context(), clinicID, rx.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary := Summarize(list)
	writeJSON(w, http.StatusOK, ListResponse{
		Payments:     list,
		Summary:      summary,
		FeeCents:     rx.FeeCents,
		BalanceCents: rx.FeeCents - summary.PaidCents,
	})
}

type statusRequest struct {
	Status Status `json:"status"`
}

// UpdateStatus handles PATCH /api/payments/{paymentID}
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	payment, err := h.repo.UpdateStatus(r.Context(), clinicID, chi.URLParam(r, "paymentID"), req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) prescription(w http.ResponseWriter, r *http.Request) (string, *prescriptions.Prescription, bool) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return "", nil, false
	}
	rx, err := h.prescriptions.Get(r.Context(), clinicID, chi.URLParam(r, "prescriptionID"))
	if err != nil {
		if errors.Is(err, prescriptions.ErrPrescriptionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return "", nil, false
		}
		h.logger.Error("failed to load prescription", "error", err)
		http.Error(w, "failed to load prescription", http.StatusInternalServerError)
		return "", nil, false
	}
	return clinicID, rx, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrMissingClinicID),
		errors.Is(err, ErrMissingPrescription):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("payment request failed", "error", err)
		http.Error(w, "payment request failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
