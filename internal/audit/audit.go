package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"psur-evidence/internal/auth"
)

// Actions recorded by the evidence engine.
const (
	ActionNotApplicable = "evidence.not_applicable"
	ActionCommit        = "evidence.commit"
	ActionProfileSave   = "mapping.profile_save"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Actor         string          `json:"actor"`
	Role          string          `json:"role"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	CaseID        string          `json:"case_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payload_digest,omitempty"`
	IP            string          `json:"ip,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// Reader lists audit entries, newest first.
type Reader interface {
	List(ctx context.Context, tenantID, caseID string, limit int) ([]Entry, error)
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewEntry builds an entry for the caller identity carried by ctx. metadata is
// marshalled to JSON; marshal failures leave it empty.
func NewEntry(ctx context.Context, action, resourceType, resourceID, caseID string, metadata any) Entry {
	entry := Entry{
		ID:           NewID(),
		TenantID:     auth.TenantIDFromContext(ctx),
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CaseID:       caseID,
		IP:           ClientIPFromContext(ctx),
		UserAgent:    UserAgentFromContext(ctx),
		CreatedAt:    time.Now().UTC(),
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
			entry.PayloadDigest = DigestJSON(raw)
		}
	}
	return entry
}

type contextKey string

const (
	contextKeyIP        contextKey = "audit.client_ip"
	contextKeyUserAgent contextKey = "audit.user_agent"
)

// WithClient stores request origin details for audit entries.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, contextKeyIP, ip)
	return context.WithValue(ctx, contextKeyUserAgent, userAgent)
}

// ClientIPFromContext returns the stored client ip.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(contextKeyIP).(string)
	return ip
}

// UserAgentFromContext returns the stored user agent.
func UserAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ua, _ := ctx.Value(contextKeyUserAgent).(string)
	return ua
}
