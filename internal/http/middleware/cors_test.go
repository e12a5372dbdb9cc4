package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		preflight   bool
		wantOrigin  string
		wantStatus  int
		wantHandled bool
	}{
		{
			name:        "listed origin",
			allowed:     []string{"https://clinic.example"},
			method:      http.MethodGet,
			origin:      "https://clinic.example",
			wantOrigin:  "https://clinic.example",
			wantStatus:  http.StatusOK,
			wantHandled: true,
		},
		{
			name:        "trailing slash in config",
			allowed:     []string{" https://clinic.example/ "},
			method:      http.MethodGet,
			origin:      "https://clinic.example",
			wantOrigin:  "https://clinic.example",
			wantStatus:  http.StatusOK,
			wantHandled: true,
		},
		{
			name:        "unknown origin still served without headers",
			allowed:     []string{"https://clinic.example"},
			method:      http.MethodGet,
			origin:      "https://other.example",
			wantStatus:  http.StatusOK,
			wantHandled: true,
		},
		{
			name:        "wildcard echoes origin",
			allowed:     []string{"*"},
			method:      http.MethodGet,
			origin:      "https://anything.example",
			wantOrigin:  "https://anything.example",
			wantStatus:  http.StatusOK,
			wantHandled: true,
		},
		{
			name:       "preflight short circuits",
			allowed:    []string{"https://clinic.example"},
			method:     http.MethodOptions,
			origin:     "https://clinic.example",
			preflight:  true,
			wantOrigin: "https://clinic.example",
			wantStatus: http.StatusNoContent,
		},
		{
			name:        "options without preflight header passes through",
			allowed:     []string{"https://clinic.example"},
			method:      http.MethodOptions,
			origin:      "https://clinic.example",
			wantOrigin:  "https://clinic.example",
			wantStatus:  http.StatusOK,
			wantHandled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/prescriptions", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
			}
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHandled, handled)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			if tt.wantOrigin != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
			}
		})
	}
}
