package auth

import (
	"net/http"
	"strings"

	"psur-evidence/internal/logging"
)

// Middleware validates JWTs and enforces RBAC. A middleware without a secret
// passes every request through unauthenticated.
type Middleware struct {
	Secret []byte
	Policy Policy
	logger *logging.Logger
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy, logger: logging.Nop()}
}

// WithLogger sets the logger used for rejected requests.
func (m *Middleware) WithLogger(logger *logging.Logger) *Middleware {
	m.logger = logging.OrNop(logger)
	return m
}

// Wrap applies auth and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil || len(m.Secret) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(extractBearer(r), m.Secret)
		var id Identity
		if err == nil {
			id, err = claims.Identity()
		}
		if err != nil {
			m.logger.Debug("auth rejected", "path", r.URL.Path, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !RoleAtLeast(id.Role, required) {
			m.logger.Debug("auth forbidden", "path", r.URL.Path, "role", id.Role, "required", required)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), id.TenantID, id.Role, id.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
