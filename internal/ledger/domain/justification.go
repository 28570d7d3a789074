package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"psur-evidence/internal/catalog"
)

var (
	// ErrEmptyCaseID is returned when no case is given.
	ErrEmptyCaseID = errors.New("ledger: empty case id")
	// ErrNoEvidenceTypes is returned when no evidence type is marked.
	ErrNoEvidenceTypes = errors.New("ledger: no evidence types")
	// ErrInvalidPeriod is returned for a missing or inverted period.
	ErrInvalidPeriod = errors.New("ledger: invalid period")
	// ErrUnknownEvidenceType is returned for types outside the catalog.
	ErrUnknownEvidenceType = errors.New("ledger: unknown evidence type")
)

// Justification is an append-only record that evidence types do not apply
// to a case for a period. Entries are never updated or deleted.
type Justification struct {
	ID            string                 `json:"id"`
	CaseID        string                 `json:"case_id"`
	DeviceCode    string                 `json:"device_code"`
	EvidenceTypes []catalog.EvidenceType `json:"evidence_types"`
	Reason        *string                `json:"reason"`
	PeriodStart   time.Time              `json:"period_start"`
	PeriodEnd     time.Time              `json:"period_end"`
	RecordedBy    string                 `json:"recorded_by,omitempty"`
	RecordedAt    time.Time              `json:"recorded_at"`
}

// NewJustification validates input and builds an entry. Repeated types are
// collapsed keeping first occurrence order; a blank reason is stored as nil.
func NewJustification(c *catalog.Catalog, id, caseID, deviceCode string, types []catalog.EvidenceType, reason string, start, end, recordedAt time.Time, recordedBy string) (Justification, error) {
	if strings.TrimSpace(caseID) == "" {
		return Justification{}, ErrEmptyCaseID
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return Justification{}, ErrInvalidPeriod
	}
	if len(types) == 0 {
		return Justification{}, ErrNoEvidenceTypes
	}
	seen := make(map[catalog.EvidenceType]struct{}, len(types))
	unique := make([]catalog.EvidenceType, 0, len(types))
	for _, t := range types {
		if !c.Known(t) {
			return Justification{}, fmt.Errorf("%w: %q", ErrUnknownEvidenceType, t)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	j := Justification{
		ID:            id,
		CaseID:        caseID,
		DeviceCode:    strings.TrimSpace(deviceCode),
		EvidenceTypes: unique,
		PeriodStart:   start.UTC(),
		PeriodEnd:     end.UTC(),
		RecordedBy:    recordedBy,
		RecordedAt:    recordedAt.UTC(),
	}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		j.Reason = &trimmed
	}
	return j, nil
}

// ReasonText returns the reason or an empty string.
func (j Justification) ReasonText() string {
	if j.Reason == nil {
		return ""
	}
	return *j.Reason
}

// Covers reports whether the entry marks t.
func (j Justification) Covers(t catalog.EvidenceType) bool {
	for _, marked := range j.EvidenceTypes {
		if marked == t {
			return true
		}
	}
	return false
}

// Repository is the append-only justification store.
type Repository interface {
	Append(ctx context.Context, j Justification) error
	// ListByCase returns entries ordered by RecordedAt, oldest first.
	ListByCase(ctx context.Context, caseID string) ([]Justification, error)
}
