package evidence

import (
	"context"
	"errors"
	"time"
)

// ErrCaseNotFound is returned when a case id is unknown.
var ErrCaseNotFound = errors.New("evidence: case not found")

// ErrNoRows is returned when committing an upload without rows.
var ErrNoRows = errors.New("evidence: upload has no rows")

// Case is the PSUR case evidence is collected for. Cases are managed
// elsewhere; this service only reads them.
type Case struct {
	ID          string    `json:"id" yaml:"id"`
	TenantID    string    `json:"tenant_id" yaml:"tenant_id"`
	DeviceCode  string    `json:"device_code" yaml:"device_code"`
	TemplateID  string    `json:"template_id" yaml:"template_id"`
	StartPeriod time.Time `json:"start_period" yaml:"start_period"`
	EndPeriod   time.Time `json:"end_period" yaml:"end_period"`
}

// CaseRepository reads cases.
type CaseRepository interface {
	// Get returns nil when the case does not exist.
	Get(ctx context.Context, id string) (*Case, error)
}
