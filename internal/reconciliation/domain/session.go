package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"psur-evidence/internal/catalog"
	evidence "psur-evidence/internal/evidence/domain"
	mapping "psur-evidence/internal/mapping/domain"
)

// State is the lifecycle position of a reconciliation session.
type State string

const (
	StateAwaitingParse       State = "awaiting_parse"
	StateProfileLookup       State = "profile_lookup"
	StateAutoApplied         State = "auto_applied"
	StateSuggested           State = "suggested"
	StatePendingVerification State = "pending_verification"
	StateVerified            State = "verified"
	StateCommitted           State = "committed"
)

var (
	// ErrIllegalTransition is returned when an operation does not apply to the current state.
	ErrIllegalTransition = errors.New("reconciliation: illegal state transition")
	// ErrNotVerified is returned when committing or saving an unverified mapping.
	ErrNotVerified = errors.New("reconciliation: mapping not verified")
	// ErrNoColumns is returned when a parse result carries no columns.
	ErrNoColumns = errors.New("reconciliation: no source columns")
	// ErrUnknownSourceColumn is returned when editing a column that was not parsed.
	ErrUnknownSourceColumn = errors.New("reconciliation: unknown source column")
	// ErrUnknownTargetField is returned when mapping onto a field outside the schema.
	ErrUnknownTargetField = errors.New("reconciliation: unknown target field")
	// ErrTargetClaimed is returned when a target field is already mapped from another column.
	ErrTargetClaimed = errors.New("reconciliation: target field already mapped")
	// ErrColumnNotMapped is returned when removing a mapping that does not exist.
	ErrColumnNotMapped = errors.New("reconciliation: source column not mapped")
	// ErrMissingRequired is returned by Verify while required fields are unmapped.
	ErrMissingRequired = errors.New("reconciliation: required fields unmapped")
)

// MissingFieldsError lists the required fields that block verification.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingRequired.Error(), strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingRequired }

// CommitOutcome records what a commit produced.
type CommitOutcome struct {
	UploadID          string    `json:"upload_id"`
	AtomsCreated      int       `json:"atoms_created"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	BlankRowsSkipped  int       `json:"blank_rows_skipped"`
	CommittedAt       time.Time `json:"committed_at"`
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Session reconciles one upload of one evidence type for a case.
type Session struct {
	ID             string               `json:"id"`
	TenantID       string               `json:"tenant_id"`
	CaseID         string               `json:"case_id"`
	EvidenceType   catalog.EvidenceType `json:"evidence_type"`
	SourceCategory string               `json:"source_category"`
	State          State                `json:"state"`
	Columns        []string             `json:"columns"`
	Rows           []evidence.Row       `json:"-"`
	Config         mapping.Config       `json:"mapping"`
	ProfileID      string               `json:"profile_id,omitempty"`
	Verified       bool                 `json:"is_verified"`
	Result         *CommitOutcome       `json:"result,omitempty"`
	History        []Transition         `json:"history"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewSession creates a session waiting for parsed columns.
func NewSession(id, tenantID, caseID string, t catalog.EvidenceType, category string, now time.Time) *Session {
	return &Session{
		ID:             id,
		TenantID:       tenantID,
		CaseID:         caseID,
		EvidenceType:   t,
		SourceCategory: category,
		State:          StateAwaitingParse,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Session) moveTo(to State, now time.Time) {
	s.History = append(s.History, Transition{From: s.State, To: to, At: now})
	s.State = to
	s.UpdatedAt = now
}

func (s *Session) expect(op string, states ...State) error {
	for _, st := range states {
		if s.State == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, op, s.State)
}

// AttachParse stores the parsed columns and rows and moves to profile lookup.
func (s *Session) AttachParse(columns []string, rows []evidence.Row, now time.Time) error {
	if err := s.expect("attach parse", StateAwaitingParse); err != nil {
		return err
	}
	if len(columns) == 0 {
		return ErrNoColumns
	}
	s.Columns = append([]string(nil), columns...)
	s.Rows = rows
	s.moveTo(StateProfileLookup, now)
	return nil
}

// ApplyProfile auto-applies a verified profile's mapping.
func (s *Session) ApplyProfile(profileID string, cfg mapping.Config, now time.Time) error {
	if err := s.expect("apply profile", StateProfileLookup); err != nil {
		return err
	}
	s.Config = cfg.Clone()
	s.ProfileID = profileID
	s.Verified = true
	s.moveTo(StateAutoApplied, now)
	return nil
}

// ApplySuggestion installs a matcher suggestion awaiting human review.
func (s *Session) ApplySuggestion(cfg mapping.Config, now time.Time) error {
	if err := s.expect("apply suggestion", StateProfileLookup); err != nil {
		return err
	}
	s.Config = cfg.Clone()
	s.Verified = false
	s.moveTo(StateSuggested, now)
	return nil
}

func (s *Session) edit(now time.Time) {
	s.Verified = false
	if s.State != StatePendingVerification {
		s.moveTo(StatePendingVerification, now)
		return
	}
	s.UpdatedAt = now
}

// SetMapping adds or retargets the mapping of one source column. Manual
// mappings carry confidence 1.
func (s *Session) SetMapping(schema catalog.Schema, source, target string, now time.Time) error {
	if err := s.expect("set mapping", StateAutoApplied, StateSuggested, StatePendingVerification, StateVerified); err != nil {
		return err
	}
	if !s.hasColumn(source) {
		return fmt.Errorf("%w: %q", ErrUnknownSourceColumn, source)
	}
	if !schema.HasField(target) {
		return fmt.Errorf("%w: %q", ErrUnknownTargetField, target)
	}
	if owner, ok := s.Config.SourceOf(target); ok && owner != source {
		return fmt.Errorf("%w: %q from %q", ErrTargetClaimed, target, owner)
	}

	mappings := make([]mapping.ColumnMapping, 0, len(s.Config.Mappings)+1)
	replaced := false
	for _, m := range s.Config.Mappings {
		if m.SourceColumn == source {
			m = mapping.ColumnMapping{SourceColumn: source, TargetField: target, Confidence: 1}
			replaced = true
		}
		mappings = append(mappings, m)
	}
	if !replaced {
		mappings = append(mappings, mapping.ColumnMapping{SourceColumn: source, TargetField: target, Confidence: 1})
	}
	s.Config = mapping.Complete(s.EvidenceType, mappings, s.Columns, schema)
	s.edit(now)
	return nil
}

// RemoveMapping unmaps one source column.
func (s *Session) RemoveMapping(schema catalog.Schema, source string, now time.Time) error {
	if err := s.expect("remove mapping", StateAutoApplied, StateSuggested, StatePendingVerification, StateVerified); err != nil {
		return err
	}
	if _, ok := s.Config.TargetOf(source); !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotMapped, source)
	}
	mappings := make([]mapping.ColumnMapping, 0, len(s.Config.Mappings))
	for _, m := range s.Config.Mappings {
		if m.SourceColumn != source {
			mappings = append(mappings, m)
		}
	}
	s.Config = mapping.Complete(s.EvidenceType, mappings, s.Columns, schema)
	s.edit(now)
	return nil
}

// Verify confirms the current mapping. Every required field must be mapped.
func (s *Session) Verify(schema catalog.Schema, now time.Time) error {
	if err := s.expect("verify", StateAutoApplied, StateSuggested, StatePendingVerification, StateVerified); err != nil {
		return err
	}
	if missing := s.Config.MissingRequired(schema); len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	s.Verified = true
	if s.State != StateVerified {
		s.moveTo(StateVerified, now)
	}
	return nil
}

// CanSaveProfile reports whether the mapping may be stored as a profile.
func (s *Session) CanSaveProfile() error {
	if s.State == StateCommitted {
		return fmt.Errorf("%w: save profile from %s", ErrIllegalTransition, s.State)
	}
	if s.State != StateVerified || !s.Verified {
		return ErrNotVerified
	}
	return nil
}

// CanCommit reports whether atoms may be created from the session. Only an
// explicitly verified session commits; an auto-applied profile still needs
// Verify, which checks the required fields against the incoming columns.
func (s *Session) CanCommit() error {
	if s.State == StateCommitted {
		return fmt.Errorf("%w: commit from %s", ErrIllegalTransition, s.State)
	}
	if s.State != StateVerified || !s.Verified {
		return ErrNotVerified
	}
	return nil
}

// MarkCommitted records the commit outcome. The session is terminal afterwards.
func (s *Session) MarkCommitted(out CommitOutcome, now time.Time) error {
	if err := s.CanCommit(); err != nil {
		return err
	}
	out.CommittedAt = now
	s.Result = &out
	s.Rows = nil
	s.moveTo(StateCommitted, now)
	return nil
}

func (s *Session) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or maps with s. Rows are shared
// because they are never mutated after parse.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Columns = append([]string(nil), s.Columns...)
	out.Config = s.Config.Clone()
	out.History = append([]Transition(nil), s.History...)
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return &out
}

// Store holds in-flight sessions. Update serializes mutations of one session.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("reconciliation: session not found")
