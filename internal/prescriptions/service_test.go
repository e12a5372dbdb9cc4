package prescriptions

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/internal/compose"
	"github.com/wolfman30/clinic-rx/internal/overlay"
	"github.com/wolfman30/clinic-rx/internal/patients"
	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

const clinicID = "clinic-1"

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return assets.EncodeDataURL("image/png", buf.Bytes())
}

type staticTemplates struct{ tpl overlay.Templates }

func (s staticTemplates) Templates(context.Context, string) (overlay.Templates, error) {
	return s.tpl, nil
}

// fakeObjects stores objects in memory and loads them back as images.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objects: map[string][]byte{}} }

func (f *fakeObjects) Enabled() bool { return true }

func (f *fakeObjects) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if f.failPut {
		return "", errors.New("bucket unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return "s3://test/" + key, nil
}

func (f *fakeObjects) Owns(clinicID, ref string) bool {
	return clinicID != "" && !strings.Contains(ref, "..") && strings.HasPrefix(ref, "s3://test/"+assets.ClinicPrefix(clinicID))
}

func (f *fakeObjects) Load(ctx context.Context, ref string) (image.Image, error) {
	if clinic, ok := tenancy.ClinicIDFromContext(ctx); !ok || !f.Owns(clinic, ref) {
		return nil, assets.ErrForeignRef
	}
	f.mu.Lock()
	data, ok := f.objects[strings.TrimPrefix(ref, "s3://test/")]
	f.mu.Unlock()
	if !ok {
		return nil, assets.ErrNotFound
	}
	return assets.Decode(data, "image/png")
}

type countingObserver struct {
	mu    sync.Mutex
	ok    int
	errs  int
	stale int
}

func (c *countingObserver) ObservePersist(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if outcome == "ok" {
		c.ok++
	} else {
		c.errs++
	}
}

func (c *countingObserver) ObserveStaleDiscarded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale++
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (a *recordingAuditor) record(event string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	if a.fail {
		return errors.New("audit table missing")
	}
	return nil
}

func (a *recordingAuditor) LogPrescriptionCreated(_ context.Context, _, _, id string) error {
	return a.record("created:" + id)
}

func (a *recordingAuditor) LogPrescriptionUpdated(_ context.Context, _, _, id string, fields []string) error {
	return a.record("updated:" + id + ":" + strings.Join(fields, ","))
}

func (a *recordingAuditor) LogPrescriptionRendered(_ context.Context, _, _, id, target, filename string) error {
	return a.record("rendered:" + id + ":" + target + ":" + filename)
}

type fixture struct {
	svc      *Service
	repo     *InMemoryRepository
	objects  *fakeObjects
	observer *countingObserver
	audit    *recordingAuditor
	patient  *patients.Patient
}

func newFixture(t *testing.T, withObjects bool) *fixture {
	t.Helper()
	patientRepo := patients.NewInMemoryRepository()
	patient, err := patientRepo.Create(context.Background(), &patients.CreatePatientRequest{
		ClinicID: clinicID, FirstName: "Ada", LastName: "Lovelace", MRNumber: "MR-42",
	})
	require.NoError(t, err)

	f := &fixture{
		repo:     NewInMemoryRepository(),
		objects:  newFakeObjects(),
		observer: &countingObserver{},
		audit:    &recordingAuditor{},
		patient:  patient,
	}
	resolver := &assets.Resolver{Data: assets.DataURLLoader{}, S3: f.objects}
	engine := compose.NewEngine(resolver, compose.WithLogger(logging.New("error")))
	deps := Deps{
		Repo:      f.repo,
		Patients:  patientRepo,
		Templates: staticTemplates{tpl: overlay.DefaultTemplates()},
		Engine:    engine,
		Observer:  f.observer,
		Audit:     f.audit,
		Logger:    logging.New("error"),
	}
	if withObjects {
		deps.Objects = f.objects
	}
	f.svc = NewService(deps)
	return f
}

func (f *fixture) create(t *testing.T, src string) *Prescription {
	t.Helper()
	rx, err := f.svc.Create(context.Background(), &CreatePrescriptionRequest{
		ClinicID: clinicID, PatientID: f.patient.ID, SourceImage: src, Notes: "Twice daily", Date: "2024-03-05",
	})
	require.NoError(t, err)
	return rx
}

func TestService_CreateRequiresSourceImage(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Create(context.Background(), &CreatePrescriptionRequest{
		ClinicID: clinicID, PatientID: f.patient.ID,
	})
	assert.ErrorIs(t, err, ErrMissingSourceImage)

	list, err := f.repo.ListByPatient(context.Background(), clinicID, f.patient.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_CreateUnknownPatient(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Create(context.Background(), &CreatePrescriptionRequest{
		ClinicID: clinicID, PatientID: "nobody", SourceImage: pngDataURL(t, 4, 4),
	})
	assert.ErrorIs(t, err, patients.ErrPatientNotFound)
}

func TestService_CreateMovesDataURLToObjectStorage(t *testing.T) {
	f := newFixture(t, true)
	rx := f.create(t, pngDataURL(t, 10, 10))

	assert.Equal(t, fmt.Sprintf("s3://test/clinics/%s/prescriptions/%s/source.png", clinicID, rx.ID), rx.SourceImage)
	assert.Equal(t, 1, f.observer.ok)

	out, err := f.svc.FlattenedImage(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Equal(t, "prescription-MR-42-3-5-2024.png", out.Filename)

	stored, err := f.repo.GetByID(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("s3://test/clinics/%s/prescriptions/%s/rendered.png", clinicID, rx.ID), stored.RenderedImage)
}

func TestService_SourceMustBelongToClinic(t *testing.T) {
	tests := []struct {
		name        string
		withObjects bool
		src         string
		want        error
	}{
		{name: "other clinic object", withObjects: true, src: "s3://test/clinics/clinic-2/prescriptions/rx-9/source.png", want: ErrForeignSourceImage},
		{name: "other bucket", withObjects: true, src: "s3://private/clinics/clinic-1/prescriptions/rx-9/source.png", want: ErrForeignSourceImage},
		{name: "traversal", withObjects: true, src: "s3://test/clinics/clinic-1/../clinic-2/logos/a.png", want: ErrForeignSourceImage},
		{name: "stored ref without object storage", withObjects: false, src: "s3://test/clinics/clinic-1/prescriptions/rx-9/source.png", want: ErrForeignSourceImage},
		{name: "metadata endpoint", withObjects: true, src: "http://169.254.169.254/latest/meta-data/", want: ErrInvalidSourceImage},
		{name: "remote url", withObjects: true, src: "https://images.example.com/rx.png", want: ErrInvalidSourceImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.withObjects)
			_, err := f.svc.Create(context.Background(), &CreatePrescriptionRequest{
				ClinicID: clinicID, PatientID: f.patient.ID, SourceImage: tt.src,
			})
			assert.ErrorIs(t, err, tt.want)

			list, err := f.repo.ListByPatient(context.Background(), clinicID, f.patient.ID)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestService_CreateRejectsOversizedImage(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := []byte{0, 0, 0xea, 0x60, 0, 0, 0xea, 0x60, 8, 6, 0, 0, 0} // 60000x60000 RGBA
	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))

	f := newFixture(t, true)
	_, err := f.svc.Create(context.Background(), &CreatePrescriptionRequest{
		ClinicID: clinicID, PatientID: f.patient.ID, SourceImage: assets.EncodeDataURL("image/png", buf.Bytes()),
	})
	assert.ErrorIs(t, err, ErrInvalidSourceImage)
	assert.ErrorContains(t, err, "pixel budget")
	assert.Empty(t, f.objects.objects)
}

func TestService_UpdateRejectsForeignSource(t *testing.T) {
	f := newFixture(t, true)
	rx := f.create(t, pngDataURL(t, 10, 10))

	foreign := "s3://test/clinics/clinic-2/prescriptions/rx-9/source.png"
	_, err := f.svc.Update(context.Background(), clinicID, rx.ID, &UpdatePrescriptionRequest{SourceImage: &foreign})
	assert.ErrorIs(t, err, ErrForeignSourceImage)

	stored, err := f.repo.GetByID(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Equal(t, rx.SourceImage, stored.SourceImage)

	own := rx.SourceImage
	_, err = f.svc.Update(context.Background(), clinicID, rx.ID, &UpdatePrescriptionRequest{SourceImage: &own})
	require.NoError(t, err)
}

func TestService_FlattenedImageReleasesSequencer(t *testing.T) {
	f := newFixture(t, true)
	rx := f.create(t, pngDataURL(t, 10, 10))

	for i := 0; i < 3; i++ {
		_, err := f.svc.FlattenedImage(context.Background(), clinicID, rx.ID)
		require.NoError(t, err)
	}
	_, err := f.svc.FlattenedImage(context.Background(), clinicID, "missing")
	require.ErrorIs(t, err, ErrPrescriptionNotFound)
	assert.Zero(t, f.svc.seq.Len())
}

func TestService_PersistenceErrorSurfacesMessage(t *testing.T) {
	f := newFixture(t, true)
	f.objects.failPut = true
	_, err := f.svc.Create(context.Background(), &CreatePrescriptionRequest{
		ClinicID: clinicID, PatientID: f.patient.ID, SourceImage: pngDataURL(t, 4, 4),
	})
	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Contains(t, persistErr.Error(), "bucket unavailable")
}

func TestService_SupersededRenderIsDiscarded(t *testing.T) {
	f := newFixture(t, true)
	rx := f.create(t, pngDataURL(t, 10, 10))

	stale := f.svc.seq.Begin(clinicID + "/" + rx.ID)
	f.svc.seq.Begin(clinicID + "/" + rx.ID)
	f.svc.persistRendered(context.Background(), stale, rx, []byte("old"))

	assert.Equal(t, 1, f.observer.stale)
	stored, err := f.repo.GetByID(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RenderedImage)
}

func TestService_DocumentAndPrint(t *testing.T) {
	f := newFixture(t, false)
	rx := f.create(t, pngDataURL(t, 60, 40))

	doc, err := f.svc.Document(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Equal(t, "prescription-MR-42-3-5-2024.pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))

	page, err := f.svc.PrintPage(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Contains(t, string(page.Data), "Clinic Name")
	assert.Contains(t, string(page.Data), "Twice daily")

	preview, err := f.svc.Preview(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Equal(t, rx.SourceImage, preview.Image.Src)
}

func TestService_Update(t *testing.T) {
	f := newFixture(t, false)
	rx := f.create(t, pngDataURL(t, 10, 10))

	empty := ""
	_, err := f.svc.Update(context.Background(), clinicID, rx.ID, &UpdatePrescriptionRequest{SourceImage: &empty})
	assert.ErrorIs(t, err, ErrMissingSourceImage)

	notes := "Once daily"
	fee := int64(2500)
	updated, err := f.svc.Update(context.Background(), clinicID, rx.ID, &UpdatePrescriptionRequest{Notes: &notes, FeeCents: &fee})
	require.NoError(t, err)
	assert.Equal(t, "Once daily", updated.Notes)
	assert.Equal(t, int64(2500), updated.FeeCents)
}

func TestService_AuditTrail(t *testing.T) {
	f := newFixture(t, false)
	rx := f.create(t, pngDataURL(t, 10, 10))

	notes := "Once daily"
	_, err := f.svc.Update(context.Background(), clinicID, rx.ID, &UpdatePrescriptionRequest{Notes: &notes})
	require.NoError(t, err)
	_, err = f.svc.Document(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"created:" + rx.ID,
		"updated:" + rx.ID + ":notes",
		"rendered:" + rx.ID + ":document:prescription-MR-42-3-5-2024.pdf",
	}, f.audit.events)
}

func TestService_AuditFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, false)
	f.audit.fail = true

	rx := f.create(t, pngDataURL(t, 10, 10))
	_, err := f.svc.FlattenedImage(context.Background(), clinicID, rx.ID)
	require.NoError(t, err)
	assert.Len(t, f.audit.events, 2)
}

func routed(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("prescriptionID", id)
	ctx := tenancy.WithClinicID(req.Context(), clinicID)
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestHandler_Downloads(t *testing.T) {
	f := newFixture(t, false)
	rx := f.create(t, pngDataURL(t, 60, 40))
	h := NewHandler(f.svc, logging.New("error"))

	w := httptest.NewRecorder()
	h.Image(w, routed(httptest.NewRequest(http.MethodGet, "/", nil), rx.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=prescription-MR-42-3-5-2024.png", w.Header().Get("Content-Disposition"))

	w = httptest.NewRecorder()
	h.Document(w, routed(httptest.NewRequest(http.MethodGet, "/", nil), rx.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=prescription-MR-42-3-5-2024.pdf", w.Header().Get("Content-Disposition"))

	w = httptest.NewRecorder()
	h.Print(w, routed(httptest.NewRequest(http.MethodGet, "/", nil), rx.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "window.print")

	w = httptest.NewRecorder()
	h.Image(w, routed(httptest.NewRequest(http.MethodGet, "/", nil), "missing"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_UnreachableSourceIsUnprocessable(t *testing.T) {
	f := newFixture(t, true)
	rx := f.create(t, "s3://test/clinics/"+clinicID+"/prescriptions/gone/source.png")
	h := NewHandler(f.svc, logging.New("error"))

	w := httptest.NewRecorder()
	h.Document(w, routed(httptest.NewRequest(http.MethodGet, "/", nil), rx.ID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_CreateRejectsForeignSource(t *testing.T) {
	f := newFixture(t, true)
	h := NewHandler(f.svc, logging.New("error"))

	body := fmt.Sprintf(`{"patient_id":%q,"source_image":"s3://test/clinics/clinic-2/prescriptions/rx-9/source.png"}`, f.patient.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/prescriptions", strings.NewReader(body))
	req = req.WithContext(tenancy.WithClinicID(req.Context(), clinicID))
	w := httptest.NewRecorder()
	h.Create(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ErrForeignSourceImage.Error())
}

func TestHandler_CreateValidation(t *testing.T) {
	f := newFixture(t, false)
	h := NewHandler(f.svc, logging.New("error"))

	body := fmt.Sprintf(`{"patient_id":%q,"notes":"no drawing"}`, f.patient.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/prescriptions", strings.NewReader(body))
	req = req.WithContext(tenancy.WithClinicID(req.Context(), clinicID))
	w := httptest.NewRecorder()
	h.Create(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ErrMissingSourceImage.Error())
}
