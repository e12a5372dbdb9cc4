package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-rx/internal/tenancy"
)

type contextKey string

const claimsKey contextKey = "staffClaims"

// Claims identify a clinic user and the role they act in.
type Claims struct {
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// StaffJWT verifies an HMAC-signed bearer token and puts the clinic id and
// role on the request context.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			role, ok := tenancy.ParseRole(claims.Role)
			if !ok || strings.TrimSpace(claims.ClinicID) == "" {
				http.Error(w, "token lacks clinic or role", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = tenancy.WithClinicID(ctx, claims.ClinicID)
			ctx = tenancy.WithRole(ctx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not permitted. Admins always pass.
func RequireRole(permitted ...tenancy.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := tenancy.RoleFromContext(r.Context())
			if !ok || !tenancy.Allowed(role, permitted...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the verified token claims if present.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}
