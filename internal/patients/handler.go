package patients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// Auditor records patient registrations.
type Auditor interface {
	LogPatientCreated(ctx context.Context, clinicID, patientID string) error
}

// Handler handles HTTP requests for patients
type Handler struct {
	repo   Repository
	audit  Auditor
	logger *logging.Logger
}

// NewHandler creates a new patients handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// WithAuditor records every registration through a.
func (h *Handler) WithAuditor(a Auditor) *Handler {
	h.audit = a
	return h
}

// Create handles POST /api/patients
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return
	}

	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ClinicID = clinicID

	patient, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateMRNumber):
			http.Error(w, err.Error(), http.StatusConflict)
		case isValidation(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to create patient", "error", err, "clinic_id", clinicID)
			http.Error(w, "failed to create patient", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("patient created", "patient_id", patient.ID, "clinic_id", clinicID)
	if h.audit != nil {
		if err := h.audit.LogPatientCreated(r.Context(), clinicID, patient.ID); err != nil {
			h.logger.Warn("failed to write audit event", "patient_id", patient.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, patient)
}

// Get handles GET /api/patients/{patientID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return
	}
	patient, err := h.repo.GetByID(r.Context(), clinicID, chi.URLParam(r, "patientID"))
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load patient", "error", err, "clinic_id", clinicID)
		http.Error(w, "failed to load patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// ListPatientsResponse is the response for listing patients
type ListPatientsResponse struct {
	Patients []*Patient `json:"patients"`
	Count    int        `json:"count"`
	Offset   int        `json:"offset"`
	Limit    int        `json:"limit"`
}

// List handles GET /api/patients
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return
	}

	filter := ListFilter{Limit: 50, Search: r.URL.Query().Get("search")}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	patients, err := h.repo.List(r.Context(), clinicID, filter)
	if err != nil {
		h.logger.Error("failed to list patients", "error", err, "clinic_id", clinicID)
		http.Error(w, "failed to list patients", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListPatientsResponse{
		Patients: patients,
		Count:    len(patients),
		Offset:   filter.Offset,
		Limit:    filter.Limit,
	})
}

func isValidation(err error) bool {
	return errors.Is(err, ErrMissingClinicID) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrMissingMRNumber) ||
		errors.Is(err, ErrInvalidDateOfBirth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
