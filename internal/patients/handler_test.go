package patients

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

func clinicRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(tenancy.WithClinicID(req.Context(), "clinic-1"))
}

func TestHandler_CreateAndGet(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), logging.Default())

	body, _ := json.Marshal(map[string]string{
		"first_name": "Ada", "last_name": "Lovelace", "mr_number": "MR-42", "date_of_birth": "1980-01-02",
	})
	w := httptest.NewRecorder()
	handler.Create(w, clinicRequest(http.MethodPost, "/api/patients", body))
	require.Equal(t, http.StatusCreated, w.Code)

	var created Patient
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "clinic-1", created.ClinicID)

	w = httptest.NewRecorder()
	handler.Create(w, clinicRequest(http.MethodPost, "/api/patients", body))
	assert.Equal(t, http.StatusConflict, w.Code)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("patientID", created.ID)
	req := clinicRequest(http.MethodGet, "/api/patients/"+created.ID, nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w = httptest.NewRecorder()
	handler.Get(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got Patient
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "MR-42", got.MRNumber)
}

func TestHandler_CreateValidation(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), logging.Default())

	w := httptest.NewRecorder()
	handler.Create(w, clinicRequest(http.MethodPost, "/api/patients", []byte(`{"first_name":"Ada"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.Create(w, clinicRequest(http.MethodPost, "/api/patients", []byte(`{`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetNotFound(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("patientID", "missing")
	req := clinicRequest(http.MethodGet, "/api/patients/missing", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	handler.Get(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_List(t *testing.T) {
	repo := NewInMemoryRepository()
	for _, mr := range []string{"MR-1", "MR-2", "MR-3"} {
		_, err := repo.Create(context.Background(), &CreatePatientRequest{
			ClinicID: "clinic-1", FirstName: "Pat", LastName: "Doe", MRNumber: mr,
		})
		require.NoError(t, err)
	}
	handler := NewHandler(repo, logging.Default())

	w := httptest.NewRecorder()
	handler.List(w, clinicRequest(http.MethodGet, "/api/patients?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListPatientsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 2, resp.Limit)
}

type patientAuditor struct{ created []string }

func (a *patientAuditor) LogPatientCreated(_ context.Context, clinicID, patientID string) error {
	a.created = append(a.created, clinicID+"/"+patientID)
	return nil
}

func TestHandler_CreateIsAudited(t *testing.T) {
	audit := &patientAuditor{}
	handler := NewHandler(NewInMemoryRepository(), logging.Default()).WithAuditor(audit)

	body, _ := json.Marshal(map[string]string{"first_name": "Ada", "last_name": "Lovelace", "mr_number": "MR-7"})
	w := httptest.NewRecorder()
	handler.Create(w, clinicRequest(http.MethodPost, "/api/patients", body))
	require.Equal(t, http.StatusCreated, w.Code)

	var created Patient
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, []string{"clinic-1/" + created.ID}, audit.created)

	w = httptest.NewRecorder()
	handler.Create(w, clinicRequest(http.MethodPost, "/api/patients", body))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, audit.created, 1)
}
