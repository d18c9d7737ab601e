package identity

import "context"

// Role distinguishes the two kinds of authenticated callers.
type Role string

const (
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
	RoleAdmin     Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

type ctxKey string

const principalKey ctxKey = "therapy.principal"

// WithPrincipal stores the caller in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the caller if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.Subject != ""
}

// CanActAsTherapist reports whether the caller in ctx may manage therapistID's
// data. Unauthenticated contexts are allowed; auth is enforced at the edge.
func CanActAsTherapist(ctx context.Context, therapistID string) bool {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.Role == RoleAdmin {
		return true
	}
	return p.Role == RoleTherapist && p.Subject == therapistID
}

// CanActAsPatient is the patient-side counterpart of CanActAsTherapist.
func CanActAsPatient(ctx context.Context, patientID string) bool {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.Role == RoleAdmin {
		return true
	}
	return p.Role == RolePatient && p.Subject == patientID
}
