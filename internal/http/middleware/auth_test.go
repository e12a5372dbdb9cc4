package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-rx/internal/tenancy"
)

func TestStaffJWTMissingSecret(t *testing.T) {
	mw := StaffJWT("")
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestStaffJWTMissingHeader(t *testing.T) {
	mw := StaffJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestStaffJWTInvalidToken(t *testing.T) {
	mw := StaffJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong", "clinic-1", "doctor"))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestStaffJWTUnknownRole(t *testing.T) {
	mw := StaffJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "clinic-1", "janitor"))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestStaffJWTValidToken(t *testing.T) {
	mw := StaffJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "clinic-1", "Doctor"))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if clinicID, _ := tenancy.ClinicIDFromContext(r.Context()); clinicID != "clinic-1" {
			t.Fatalf("expected clinic-1 in context, got %q", clinicID)
		}
		if role, _ := tenancy.RoleFromContext(r.Context()); role != tenancy.RoleDoctor {
			t.Fatalf("expected doctor role, got %q", role)
		}
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			t.Fatalf("expected claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role tenancy.Role
		want int
	}{
		{tenancy.RoleDoctor, http.StatusOK},
		{tenancy.RoleAdmin, http.StatusOK},
		{tenancy.RoleStaff, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	mw := RequireRole(tenancy.RoleDoctor)
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/prescriptions", nil)
		if tt.role != "" {
			req = req.WithContext(tenancy.WithRole(req.Context(), tt.role))
		}
		rec := httptest.NewRecorder()
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Fatalf("role %q: expected status %d, got %d", tt.role, tt.want, rec.Code)
		}
	}
}

func signedToken(t *testing.T, secret, clinicID, role string) string {
	t.Helper()
	claims := Claims{
		ClinicID: clinicID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
