package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// LogoStorage keeps uploaded logo files.
type LogoStorage interface {
	Enabled() bool
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// UploadObserver counts logo upload outcomes.
type UploadObserver interface {
	ObserveLogoUpload(outcome string)
}

type noopUploadObserver struct{}

func (noopUploadObserver) ObserveLogoUpload(string) {}

// Handler exposes the clinic's header and footer templates.
type Handler struct {
	store    *Store
	logos    LogoStorage
	maxLogo  int64
	observer UploadObserver
	logger   *logging.Logger
}

// NewHandler creates a templates handler. logos may be nil, in which case
// logo uploads are rejected.
func NewHandler(store *Store, logos LogoStorage, maxLogo int64, observer UploadObserver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if observer == nil {
		observer = noopUploadObserver{}
	}
	if maxLogo <= 0 {
		maxLogo = MaxLogoBytes
	}
	return &Handler{store: store, logos: logos, maxLogo: maxLogo, observer: observer, logger: logger}
}

// List handles GET /api/templates
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := clinic(w, r)
	if !ok {
		return
	}
	tpl, err := h.store.Templates(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to load templates", "error", err, "clinic_id", clinicID)
		http.Error(w, "failed to load templates", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// Get handles GET /api/templates/{kind}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	clinicID, kind, ok := slot(w, r)
	if !ok {
		return
	}
	o, err := h.store.Get(r.Context(), clinicID, kind)
	if err != nil {
		h.logger.Error("failed to load template", "error", err, "clinic_id", clinicID, "kind", kind)
		http.Error(w, "failed to load template", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Put handles PUT /api/templates/{kind}
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	clinicID, kind, ok := slot(w, r)
	if !ok {
		return
	}
	var o Overlay
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	o.Kind = kind
	def := Default(kind)
	if o.Alignment == "" {
		o.Alignment = def.Alignment
	}
	if o.FontSize == "" {
		o.FontSize = def.FontSize
	}
	if kind == KindFooter && o.Logo != nil {
		h.writeError(w, ErrLogoNotSupported)
		return
	}
	// The logo only changes through UploadLogo and DeleteLogo.
	saved, err := h.store.Update(r.Context(), clinicID, kind, func(cur *Overlay) error {
		logo := cur.Logo
		*cur = o
		cur.Logo = logo
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// PatchRequest edits individual template fields. Toggles flip the flag.
type PatchRequest struct {
	Text           *string    `json:"text"`
	Address        *string    `json:"address"`
	Contact        *string    `json:"contact"`
	AdditionalInfo *string    `json:"additional_info"`
	ToggleBold     bool       `json:"toggle_bold"`
	ToggleItalic   bool       `json:"toggle_italic"`
	Alignment      *Alignment `json:"alignment"`
	FontSize       *FontSize  `json:"font_size"`
}

// Apply edits o in place.
func (p PatchRequest) Apply(o *Overlay) error {
	if p.Text != nil {
		o.Text = *p.Text
	}
	if p.Address != nil {
		o.Address = *p.Address
	}
	if p.Contact != nil {
		o.Contact = *p.Contact
	}
	if p.AdditionalInfo != nil {
		o.AdditionalInfo = *p.AdditionalInfo
	}
	if p.ToggleBold {
		o.ToggleBold()
	}
	if p.ToggleItalic {
		o.ToggleItalic()
	}
	if p.Alignment != nil {
		if err := o.SetAlignment(*p.Alignment); err != nil {
			return err
		}
	}
	if p.FontSize != nil {
		if err := o.SetFontSize(*p.FontSize); err != nil {
			return err
		}
	}
	return nil
}

// Patch handles PATCH /api/templates/{kind}
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	clinicID, kind, ok := slot(w, r)
	if !ok {
		return
	}
	var req PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	o, err := h.store.Update(r.Context(), clinicID, kind, req.Apply)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Reset handles DELETE /api/templates/{kind}
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	clinicID, kind, ok := slot(w, r)
	if !ok {
		return
	}
	var previous string
	if kind == KindHeader {
		cur, err := h.store.Get(r.Context(), clinicID, kind)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if cur.HasLogo() {
			previous = cur.Logo.Ref
		}
	}
	if err := h.store.Reset(r.Context(), clinicID, kind); err != nil {
		h.writeError(w, err)
		return
	}
	h.deleteLogo(r.Context(), clinicID, previous)
	writeJSON(w, http.StatusOK, Default(kind))
}

// UploadLogo handles POST /api/templates/header/logo (multipart field "logo")
func (h *Handler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := clinic(w, r)
	if !ok {
		return
	}
	if h.logos == nil || !h.logos.Enabled() {
		http.Error(w, "logo storage is not configured", http.StatusServiceUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxLogo+(1<<20))
	file, header, err := r.FormFile("logo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, &InvalidUploadError{Constraint: ConstraintSize, Message: fmt.Sprintf("logo exceeds %d bytes", h.maxLogo)})
			return
		}
		http.Error(w, "multipart field \"logo\" is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := ValidateLogoUpload(header.Size, contentType, h.maxLogo); err != nil {
		h.reject(w, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxLogo+1))
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	if err := ValidateLogoUpload(int64(len(data)), contentType, h.maxLogo); err != nil {
		h.reject(w, err)
		return
	}
	canonical, _ := NormalizeLogoType(contentType)
	if _, err := assets.Decode(data, canonical); err != nil {
		h.reject(w, &InvalidUploadError{Constraint: ConstraintType, Message: "logo is not a readable image"})
		return
	}

	key := LogoPrefix(clinicID) + uuid.New().String() + logoExtension(canonical)
	ref, err := h.logos.Put(r.Context(), key, canonical, data)
	if err != nil {
		h.observer.ObserveLogoUpload("error")
		h.logger.Error("failed to store logo", "error", err, "clinic_id", clinicID)
		http.Error(w, "failed to store logo", http.StatusBadGateway)
		return
	}

	var previous string
	o, err := h.store.Update(r.Context(), clinicID, KindHeader, func(o *Overlay) error {
		if o.HasLogo() {
			previous = o.Logo.Ref
		}
		return o.SetLogo(&Logo{Ref: ref, ContentType: canonical, SizeBytes: int64(len(data))})
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.deleteLogo(r.Context(), clinicID, previous)
	h.observer.ObserveLogoUpload("ok")
	h.logger.Info("logo uploaded", "clinic_id", clinicID, "bytes", len(data), "content_type", canonical)
	writeJSON(w, http.StatusOK, o)
}

// DeleteLogo handles DELETE /api/templates/header/logo
func (h *Handler) DeleteLogo(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := clinic(w, r)
	if !ok {
		return
	}
	var previous string
	o, err := h.store.Update(r.Context(), clinicID, KindHeader, func(o *Overlay) error {
		if o.HasLogo() {
			previous = o.Logo.Ref
		}
		return o.SetLogo(nil)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.deleteLogo(r.Context(), clinicID, previous)
	writeJSON(w, http.StatusOK, o)
}

// LogoPrefix is the object key prefix every uploaded logo of a clinic lives
// under.
func LogoPrefix(clinicID string) string {
	return "clinics/" + clinicID + "/logos/"
}

// deleteLogo removes a replaced logo object. Refs outside the clinic's logo
// prefix are left alone.
func (h *Handler) deleteLogo(ctx context.Context, clinicID, ref string) {
	if ref == "" || h.logos == nil || !h.logos.Enabled() {
		return
	}
	_, key, err := assets.ParseS3Ref(ref)
	if err != nil {
		return
	}
	if clinicID == "" || strings.Contains(key, "..") || !strings.HasPrefix(key, LogoPrefix(clinicID)) {
		h.logger.Warn("refusing to delete logo outside clinic prefix", "clinic_id", clinicID, "ref", ref)
		return
	}
	if err := h.logos.Delete(ctx, ref); err != nil {
		h.logger.Warn("failed to delete previous logo", "error", err)
	}
}

func (h *Handler) reject(w http.ResponseWriter, err error) {
	h.observer.ObserveLogoUpload("rejected")
	var invalid *InvalidUploadError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":      invalid.Message,
			"constraint": string(invalid.Constraint),
		})
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAlignment), errors.Is(err, ErrInvalidFontSize),
		errors.Is(err, ErrLogoNotSupported), errors.Is(err, ErrMissingLogoSource),
		errors.Is(err, ErrUnknownKind):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("template request failed", "error", err)
		http.Error(w, "template request failed", http.StatusInternalServerError)
	}
}

func logoExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	}
	return ""
}

func clinic(w http.ResponseWriter, r *http.Request) (string, bool) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing clinic context", http.StatusBadRequest)
	}
	return clinicID, ok
}

func slot(w http.ResponseWriter, r *http.Request) (string, Kind, bool) {
	clinicID, ok := clinic(w, r)
	if !ok {
		return "", "", false
	}
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return "", "", false
	}
	return clinicID, kind, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
