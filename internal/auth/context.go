package auth

import "context"

type identityKey struct{}

// Identity is the authenticated caller of a request.
type Identity struct {
	TenantID string
	Role     Role
	Subject  string
}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, tenantID string, role Role, subject string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, Identity{TenantID: tenantID, Role: role, Subject: subject})
}

// IdentityFromContext returns the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// TenantIDFromContext returns the caller tenant or "".
func TenantIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.TenantID
}

// TenantOrDefault returns the caller tenant, or fallback for unauthenticated
// callers such as local development without a JWT secret.
func TenantOrDefault(ctx context.Context, fallback string) string {
	if tenantID := TenantIDFromContext(ctx); tenantID != "" {
		return tenantID
	}
	return fallback
}

// RoleFromContext returns the caller role or "".
func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFromContext(ctx)
	if normalized, ok := NormalizeRole(string(id.Role)); ok {
		return normalized
	}
	return ""
}

// SubjectFromContext returns the caller subject or "".
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}
