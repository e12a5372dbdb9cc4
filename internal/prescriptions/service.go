package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/internal/compose"
	"github.com/wolfman30/clinic-rx/internal/overlay"
	"github.com/wolfman30/clinic-rx/internal/patients"
	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

var serviceTracer = otel.Tracer("clinicrx.internal.prescriptions")

// PatientLookup resolves the patient a prescription belongs to.
type PatientLookup interface {
	GetByID(ctx context.Context, clinicID, id string) (*patients.Patient, error)
}

// TemplateSource returns the clinic's current header and footer.
type TemplateSource interface {
	Templates(ctx context.Context, clinicID string) (overlay.Templates, error)
}

// ObjectStore persists captured and rendered images.
type ObjectStore interface {
	Enabled() bool
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Owns(clinicID, ref string) bool
}

// Observer receives persistence outcomes.
type Observer interface {
	ObservePersist(outcome string)
	ObserveStaleDiscarded()
}

// Auditor records access to prescription records.
type Auditor interface {
	LogPrescriptionCreated(ctx context.Context, clinicID, patientID, prescriptionID string) error
	LogPrescriptionUpdated(ctx context.Context, clinicID, patientID, prescriptionID string, fields []string) error
	LogPrescriptionRendered(ctx context.Context, clinicID, patientID, prescriptionID, target, filename string) error
}

type noopObserver struct{}

func (noopObserver) ObservePersist(string)  {}
func (noopObserver) ObserveStaleDiscarded() {}

// Service saves prescriptions and renders them with the clinic's overlays.
type Service struct {
	repo      Repository
	patients  PatientLookup
	templates TemplateSource
	engine    *compose.Engine
	objects   ObjectStore
	seq       *compose.Sequencer
	observer  Observer
	audit     Auditor
	logger    *logging.Logger
}

// Deps groups the collaborators of a Service. Objects, Observer and Audit
// are optional.
type Deps struct {
	Repo      Repository
	Patients  PatientLookup
	Templates TemplateSource
	Engine    *compose.Engine
	Objects   ObjectStore
	Observer  Observer
	Audit     Auditor
	Logger    *logging.Logger
}

// NewService wires a Service.
func NewService(d Deps) *Service {
	if d.Repo == nil || d.Patients == nil || d.Templates == nil || d.Engine == nil {
		panic("prescriptions: repo, patients, templates and engine are required")
	}
	s := &Service{
		repo:      d.Repo,
		patients:  d.Patients,
		templates: d.Templates,
		engine:    d.Engine,
		objects:   d.Objects,
		seq:       compose.NewSequencer(),
		observer:  d.Observer,
		audit:     d.Audit,
		logger:    d.Logger,
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

func (s *Service) objectsEnabled() bool {
	return s.objects != nil && s.objects.Enabled()
}

// Create validates and stores a prescription. Inline data URLs are moved
// to object storage when it is configured.
func (s *Service) Create(ctx context.Context, req *CreatePrescriptionRequest) (*Prescription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.patients.GetByID(ctx, req.ClinicID, req.PatientID); err != nil {
		return nil, err
	}
	date, _ := req.ParsedDate()
	p := &Prescription{
		ID:        uuid.New().String(),
		ClinicID:  req.ClinicID,
		PatientID: req.PatientID,
		Notes:     req.Notes,
		FeeCents:  req.FeeCents,
		Date:      date,
	}
	src, err := s.storeSource(ctx, p, req.SourceImage)
	if err != nil {
		return nil, err
	}
	p.SourceImage = src

	if err := s.repo.Create(ctx, p); err != nil {
		s.observer.ObservePersist("error")
		return nil, &PersistenceError{Op: "save", Err: err}
	}
	s.observer.ObservePersist("ok")
	s.logger.Info("prescription saved", "prescription_id", p.ID, "clinic_id", p.ClinicID, "patient_id", p.PatientID)
	if s.audit != nil {
		s.auditErr(p, s.audit.LogPrescriptionCreated(ctx, p.ClinicID, p.PatientID, p.ID))
	}
	return p, nil
}

// Update changes notes, fee or image of an existing prescription.
func (s *Service) Update(ctx context.Context, clinicID, id string, req *UpdatePrescriptionRequest) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	previous := p.SourceImage
	if err := req.Apply(p); err != nil {
		return nil, err
	}
	if p.SourceImage != previous {
		src, err := s.storeSource(ctx, p, p.SourceImage)
		if err != nil {
			return nil, err
		}
		p.SourceImage = src
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			return nil, err
		}
		s.observer.ObservePersist("error")
		return nil, &PersistenceError{Op: "update", Err: err}
	}
	s.observer.ObservePersist("ok")
	if s.audit != nil {
		s.auditErr(p, s.audit.LogPrescriptionUpdated(ctx, p.ClinicID, p.PatientID, p.ID, req.Fields()))
	}
	return p, nil
}

// auditErr logs a failed audit write. Audit failures never fail the request.
func (s *Service) auditErr(p *Prescription, err error) {
	if err != nil {
		s.logger.Warn("failed to write audit event", "prescription_id", p.ID, "clinic_id", p.ClinicID, "error", err)
	}
}

func (s *Service) auditRender(ctx context.Context, b *bundle, target string, out *Rendered) {
	if s.audit == nil {
		return
	}
	s.auditErr(b.rx, s.audit.LogPrescriptionRendered(ctx, b.rx.ClinicID, b.rx.PatientID, b.rx.ID, target, out.Filename))
}

// Get returns one prescription.
func (s *Service) Get(ctx context.Context, clinicID, id string) (*Prescription, error) {
	return s.repo.GetByID(ctx, clinicID, id)
}

// ListByPatient returns a patient's prescriptions, newest first.
func (s *Service) ListByPatient(ctx context.Context, clinicID, patientID string) ([]*Prescription, error) {
	if _, err := s.patients.GetByID(ctx, clinicID, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, clinicID, patientID)
}

// storeSource accepts inline data URLs and references already stored for the
// prescription's clinic.
func (s *Service) storeSource(ctx context.Context, p *Prescription, src string) (string, error) {
	if strings.HasPrefix(src, "s3://") {
		if !s.objectsEnabled() || !s.objects.Owns(p.ClinicID, src) {
			return "", ErrForeignSourceImage
		}
		return src, nil
	}
	mediaType, data, err := assets.ParseDataURL(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSourceImage, err)
	}
	if !assets.IsSVG(mediaType, data) {
		if err := assets.CheckDimensions(data); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidSourceImage, err)
		}
	}
	if !s.objectsEnabled() {
		return src, nil
	}
	key := fmt.Sprintf("clinics/%s/prescriptions/%s/source%s", p.ClinicID, p.ID, extensionFor(mediaType))
	ref, err := s.objects.Put(ctx, key, mediaType, data)
	if err != nil {
		return "", &PersistenceError{Op: "upload image for", Err: err}
	}
	return ref, nil
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// bundle is everything a render needs.
type bundle struct {
	rx        *Prescription
	patient   *patients.Patient
	templates overlay.Templates
}

// scoped binds clinicID to ctx so image loads stay inside the clinic's
// storage.
func scoped(ctx context.Context, clinicID string) context.Context {
	return tenancy.WithClinicID(ctx, clinicID)
}

func (s *Service) load(ctx context.Context, clinicID, id string) (*bundle, error) {
	rx, err := s.repo.GetByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.GetByID(ctx, clinicID, rx.PatientID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.templates.Templates(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("prescriptions: load templates: %w", err)
	}
	return &bundle{rx: rx, patient: patient, templates: tpl}, nil
}

// Preview describes the on-screen composition.
func (s *Service) Preview(ctx context.Context, clinicID, id string) (compose.Preview, error) {
	ctx = scoped(ctx, clinicID)
	b, err := s.load(ctx, clinicID, id)
	if err != nil {
		return compose.Preview{}, err
	}
	return s.engine.RenderPreview(ctx, b.rx.Artifact(), b.templates), nil
}

// Rendered is a downloadable rendition with its file name.
type Rendered struct {
	Filename string
	Data     []byte
}

// FlattenedImage renders the single-image PNG. The result is also stored
// as the prescription's rendered image unless a newer render of the same
// prescription started in the meantime.
func (s *Service) FlattenedImage(ctx context.Context, clinicID, id string) (*Rendered, error) {
	ctx, span := serviceTracer.Start(scoped(ctx, clinicID), "prescriptions.flattened_image")
	defer span.End()
	span.SetAttributes(attribute.String("prescription.id", id))

	b, err := s.load(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	ticket := s.seq.Begin(clinicID + "/" + id)
	defer s.seq.Done(ticket)
	out, err := s.engine.ComposeFlattenedImage(ctx, b.rx.Artifact(), b.templates)
	if err != nil {
		return nil, err
	}
	s.persistRendered(ctx, ticket, b.rx, out.PNG)
	rendered := &Rendered{
		Filename: compose.DownloadName(b.patient.MRNumber, b.rx.Date, "png"),
		Data:     out.PNG,
	}
	s.auditRender(ctx, b, "image", rendered)
	return rendered, nil
}

func (s *Service) persistRendered(ctx context.Context, ticket compose.Ticket, rx *Prescription, png []byte) {
	if !s.objectsEnabled() {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !s.seq.Current(ticket) {
		s.observer.ObserveStaleDiscarded()
		span.AddEvent("render.superseded", trace.WithAttributes(attribute.Int64("render.generation", int64(ticket.Generation))))
		s.logger.Debug("discarding superseded render", "prescription_id", rx.ID, "generation", ticket.Generation)
		return
	}
	key := fmt.Sprintf("clinics/%s/prescriptions/%s/rendered.png", rx.ClinicID, rx.ID)
	ref, err := s.objects.Put(ctx, key, "image/png", png)
	if err != nil {
		s.observer.ObservePersist("error")
		s.logger.Warn("failed to store rendered prescription", "prescription_id", rx.ID, "error", err)
		return
	}
	if !s.seq.Current(ticket) {
		s.observer.ObserveStaleDiscarded()
		span.AddEvent("render.superseded", trace.WithAttributes(attribute.Int64("render.generation", int64(ticket.Generation))))
		return
	}
	if err := s.repo.SetRenderedImage(ctx, rx.ClinicID, rx.ID, ref); err != nil {
		s.observer.ObservePersist("error")
		s.logger.Warn("failed to record rendered prescription", "prescription_id", rx.ID, "error", err)
		return
	}
	span.AddEvent("render.persisted", trace.WithAttributes(attribute.String("render.ref", ref)))
	s.observer.ObservePersist("ok")
}

// Document renders the paginated PDF.
func (s *Service) Document(ctx context.Context, clinicID, id string) (*Rendered, error) {
	ctx = scoped(ctx, clinicID)
	b, err := s.load(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.engine.ComposeDocument(ctx, b.rx.Artifact(), toComposePatient(b.patient), b.templates)
	if err != nil {
		return nil, err
	}
	rendered := &Rendered{
		Filename: compose.DownloadName(b.patient.MRNumber, b.rx.Date, "pdf"),
		Data:     doc.PDF,
	}
	s.auditRender(ctx, b, "document", rendered)
	return rendered, nil
}

// PrintPage renders the standalone print HTML.
func (s *Service) PrintPage(ctx context.Context, clinicID, id string) (*Rendered, error) {
	ctx = scoped(ctx, clinicID)
	b, err := s.load(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	page, err := s.engine.RenderPrintDocument(ctx, b.rx.Artifact(), toComposePatient(b.patient), b.templates)
	if err != nil {
		return nil, err
	}
	rendered := &Rendered{
		Filename: compose.DownloadName(b.patient.MRNumber, b.rx.Date, "html"),
		Data:     page,
	}
	s.auditRender(ctx, b, "print", rendered)
	return rendered, nil
}
