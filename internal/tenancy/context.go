package tenancy

import (
	"context"
	"strings"
)

type ctxKey string

const (
	clinicKey ctxKey = "clinicrx.clinic_id"
	roleKey   ctxKey = "clinicrx.role"
)

// Role is the access level of an authenticated user.
type Role string

const (
	RoleDoctor Role = "doctor"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// ParseRole normalizes a role claim. Unknown roles are rejected.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleDoctor:
		return RoleDoctor, true
	case RoleStaff:
		return RoleStaff, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// WithClinicID stores the clinic id in context.
func WithClinicID(ctx context.Context, clinicID string) context.Context {
	return context.WithValue(ctx, clinicKey, clinicID)
}

// ClinicIDFromContext extracts the clinic id if present.
func ClinicIDFromContext(ctx context.Context) (string, bool) {
	clinicID, ok := ctx.Value(clinicKey).(string)
	return clinicID, ok && clinicID != ""
}

// WithRole stores the caller's role in context.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// RoleFromContext extracts the caller's role if present.
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleKey).(Role)
	return role, ok && role != ""
}

// Allowed reports whether role is one of the permitted roles. Admins are
// always allowed.
func Allowed(role Role, permitted ...Role) bool {
	if role == RoleAdmin {
		return true
	}
	for _, p := range permitted {
		if role == p {
			return true
		}
	}
	return false
}
