package capture

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// Handler replays recorded strokes into a prescription image.
type Handler struct {
	limits Limits
	logger *logging.Logger
}

// NewHandler creates a capture handler.
func NewHandler(limits Limits, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{limits: limits, logger: logger}
}

// Response carries the snapshot as a data URL ready to save as a
// prescription's source image.
type Response struct {
	*Result
	SourceImage string `json:"source_image"`
}

// Replay handles POST /api/capture
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<20)
	var rec Recording
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res, err := Replay(rec, h.limits)
	if err != nil {
		if errors.Is(err, ErrRecordingTooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		if errors.Is(err, ErrInvalidSize) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Warn("capture replay failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Debug("capture replayed", "strokes", res.Strokes, "segments", res.Segments)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{
		Result:      res,
		SourceImage: assets.EncodeDataURL("image/png", res.PNG),
	})
}
