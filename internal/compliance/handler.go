package compliance

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

const maxAuditPage = 500

// Handler exposes the audit trail to clinic admins.
type Handler struct {
	audit  *AuditService
	logger *logging.Logger
}

// NewHandler creates a new audit HTTP handler.
func NewHandler(audit *AuditService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{audit: audit, logger: logger}
}

// ListEvents returns audit events for the caller's clinic.
// GET /api/audit
// Query params:
//   - patient_id, prescription_id, event_type: optional filters
//   - start, end: RFC3339 timestamps (optional)
//   - limit, offset: paging, limit capped at 500
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "clinic required"}`, http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	filter := AuditFilter{
		ClinicID:       clinicID,
		PatientID:      q.Get("patient_id"),
		PrescriptionID: q.Get("prescription_id"),
		EventType:      AuditEventType(q.Get("event_type")),
		Limit:          100,
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &filter.StartTime}, {"end", &filter.EndTime}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, `{"error": "invalid `+p.name+` time, use RFC3339 format"}`, http.StatusBadRequest)
			return
		}
		*p.dst = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error": "invalid limit"}`, http.StatusBadRequest)
			return
		}
		filter.Limit = min(n, maxAuditPage)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, `{"error": "invalid offset"}`, http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}

	events, err := h.audit.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []AuditEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		h.logger.Error("failed to encode audit events", "clinic_id", clinicID, "error", err)
	}
}
