package router

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/internal/capture"
	"github.com/wolfman30/clinic-rx/internal/compliance"
	"github.com/wolfman30/clinic-rx/internal/compose"
	httpmiddleware "github.com/wolfman30/clinic-rx/internal/http/middleware"
	"github.com/wolfman30/clinic-rx/internal/overlay"
	"github.com/wolfman30/clinic-rx/internal/patients"
	"github.com/wolfman30/clinic-rx/internal/payments"
	"github.com/wolfman30/clinic-rx/internal/prescriptions"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()

	logger := logging.New("error")
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	templates := overlay.NewStore(client, logger)
	patientRepo := patients.NewInMemoryRepository()
	engine := compose.NewEngine(assets.DataURLLoader{}, compose.WithLogger(logger))
	svc := prescriptions.NewService(prescriptions.Deps{
		Repo:      prescriptions.NewInMemoryRepository(),
		Patients:  patientRepo,
		Templates: templates,
		Engine:    engine,
		Logger:    logger,
	})

	return &Config{
		Logger:               logger,
		CaptureHandler:       capture.NewHandler(capture.DefaultLimits, logger),
		TemplatesHandler:     overlay.NewHandler(templates, nil, 1<<20, nil, logger),
		PatientsHandler:      patients.NewHandler(patientRepo, logger),
		PrescriptionsHandler: prescriptions.NewHandler(svc, logger),
		PaymentsHandler:      payments.NewHandler(payments.NewInMemoryRepository(), svc, logger),
		DevHeaders:           true,
	}
}

func sourceDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return assets.EncodeDataURL("image/png", buf.Bytes())
}

func do(t *testing.T, h http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(clinicHeader, "clinic-1")
		req.Header.Set(roleHeader, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := New(newTestConfig(t))

	rr := do(t, router, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterPrescriptionFlow(t *testing.T) {
	router := New(newTestConfig(t))

	rr := do(t, router, http.MethodPost, "/api/patients", "staff", map[string]string{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"mr_number":  "MR-42",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var patient patients.Patient
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&patient))

	rxBody := map[string]any{
		"patient_id":   patient.ID,
		"source_image": sourceDataURL(t),
		"notes":        "Take twice daily",
		"date":         "2024-03-05",
	}

	rr = do(t, router, http.MethodPost, "/api/prescriptions", "staff", rxBody)
	assert.Equal(t, http.StatusForbidden, rr.Code, "staff cannot author prescriptions")

	rr = do(t, router, http.MethodPost, "/api/prescriptions", "doctor", rxBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rx prescriptions.Prescription
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rx))

	rr = do(t, router, http.MethodGet, "/api/prescriptions/"+rx.ID+"/image.png", "staff", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "prescription-MR-42-3-5-2024.png")

	rr = do(t, router, http.MethodGet, "/api/prescriptions/"+rx.ID+"/document.pdf", "doctor", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, strings.HasPrefix(rr.Body.String(), "%PDF"))

	rr = do(t, router, http.MethodGet, "/api/patients/"+patient.ID+"/prescriptions", "staff", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/prescriptions/"+rx.ID+"/payments", "staff", map[string]any{
		"amount_cents": 2500,
		"method":       "cash",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestRouterTemplatesRequireDoctorToEdit(t *testing.T) {
	router := New(newTestConfig(t))

	rr := do(t, router, http.MethodGet, "/api/templates", "staff", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodPatch, "/api/templates/header", "staff", map[string]any{"alignment": "left"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodPatch, "/api/templates/header", "admin", map[string]any{"alignment": "left"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var header overlay.Overlay
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&header))
	assert.Equal(t, overlay.AlignLeft, header.Alignment)
}

func TestRouterMissingClinicHeaders(t *testing.T) {
	router := New(newTestConfig(t))

	rr := do(t, router, http.MethodGet, "/api/patients", "", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterAPIDisabledWithoutAuth(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.DevHeaders = false
	router := New(cfg)

	rr := do(t, router, http.MethodGet, "/api/patients", "staff", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterJWTAuth(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.DevHeaders = false
	cfg.JWTSecret = "secret"
	router := New(cfg)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.Claims{
		ClinicID: "clinic-1",
		Role:     "staff",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterAuditIsAdminOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := newTestConfig(t)
	cfg.AuditHandler = compliance.NewHandler(compliance.NewAuditService(db), cfg.Logger)
	router := New(cfg)

	rr := do(t, router, http.MethodGet, "/api/audit", "doctor", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	mock.ExpectQuery("SELECT id, event_type").
		WithArgs("clinic-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "clinic_id", "actor_role", "patient_id",
			"prescription_id", "details", "created_at",
		}))

	rr = do(t, router, http.MethodGet, "/api/audit", "admin", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, "[]", rr.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
