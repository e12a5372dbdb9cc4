package prescriptions

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-rx/internal/compose"
	"github.com/wolfman30/clinic-rx/internal/patients"
	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// Handler handles HTTP requests for prescriptions and their renditions
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new prescriptions handler
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /api/prescriptions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return
	}
	var req CreatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ClinicID = clinicID

	rx, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "failed to create prescription")
		return
	}
	writeJSON(w, http.StatusCreated, rx)
}

// Get handles GET /api/prescriptions/{prescriptionID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := scope(w, r)
	if !ok {
		return
	}
	rx, err := h.svc.Get(r.Context(), clinicID, id)
	if err != nil {
		h.writeError(w, err, "failed to load prescription")
		return
	}
	writeJSON(w, http.StatusOK, rx)
}

// Update handles PATCH /api/prescriptions/{prescriptionID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := scope(w, r)
	if !ok {
		return
	}
	var req UpdatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rx, err := h.svc.Update(r.Context(), clinicID, id, &req)
	if err != nil {
		h.writeError(w, err, "failed to update prescription")
		return
	}
	writeJSON(w, http.StatusOK, rx)
}

// ListByPatient handles GET /api/patients/{patientID}/prescriptions
func (h *Handler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return
	}
	list, err := h.svc.ListByPatient(r.Context(), clinicID, chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, err, "failed to list prescriptions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prescriptions": list, "count": len(list)})
}

// Preview handles GET /api/prescriptions/{prescriptionID}/preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := scope(w, r)
	if !ok {
		return
	}
	preview, err := h.svc.Preview(r.Context(), clinicID, id)
	if err != nil {
		h.writeError(w, err, "failed to build preview")
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// Image handles GET /api/prescriptions/{prescriptionID}/image.png
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := scope(w, r)
	if !ok {
		return
	}
	out, err := h.svc.FlattenedImage(r.Context(), clinicID, id)
	if err != nil {
		h.writeError(w, err, "failed to render image")
		return
	}
	writeFile(w, "image/png", "attachment", out)
}

// Document handles GET /api/prescriptions/{prescriptionID}/document.pdf
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := scope(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Document(r.Context(), clinicID, id)
	if err != nil {
		h.writeError(w, err, "failed to render document")
		return
	}
	writeFile(w, "application/pdf", "attachment", out)
}

// Print handles GET /api/prescriptions/{prescriptionID}/print
func (h *Handler) Print(w http.ResponseWriter, r *http.Request) {
	clinicID, id, ok := scope(w, r)
	if !ok {
		return
	}
	out, err := h.svc.PrintPage(r.Context(), clinicID, id)
	if err != nil {
		h.writeError(w, err, "failed to render print page")
		return
	}
	writeFile(w, "text/html; charset=utf-8", "inline", out)
}

func scope(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
		return "", "", false
	}
	id := chi.URLParam(r, "prescriptionID")
	if id == "" {
		http.Error(w, "missing prescription id", http.StatusBadRequest)
		return "", "", false
	}
	return clinicID, id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	var persistErr *PersistenceError
	switch {
	case isValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPrescriptionNotFound), errors.Is(err, patients.ErrPatientNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, compose.ErrSourceImageLoad):
		h.logger.Warn("prescription image unavailable", "error", err)
		http.Error(w, compose.ErrSourceImageLoad.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &persistErr):
		h.logger.Error("persistence failure", "error", err)
		http.Error(w, persistErr.Error(), http.StatusInternalServerError)
	default:
		h.logger.Error(fallback, "error", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func writeFile(w http.ResponseWriter, contentType, disposition string, out *Rendered) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": out.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
