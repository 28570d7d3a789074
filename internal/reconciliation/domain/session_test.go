package reconciliation

import (
	"errors"
	"testing"
	"time"

	"psur-evidence/internal/catalog"
	mapping "psur-evidence/internal/mapping/domain"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func capaSchema(t *testing.T) catalog.Schema {
	t.Helper()
	schema, ok := catalog.Default().Schema("capa_record")
	if !ok {
		t.Fatalf("capa_record missing from catalog")
	}
	return schema
}

func suggestedSession(t *testing.T) (*Session, catalog.Schema) {
	t.Helper()
	schema := capaSchema(t)
	s := NewSession("s-1", "tenant-a", "case-1", "capa_record", "capa", t0)
	columns := []string{"CAPA No", "Opened", "Description", "Status", "Notes"}
	if err := s.AttachParse(columns, nil, t0); err != nil {
		t.Fatalf("attach: %v", err)
	}
	cfg := mapping.Complete("capa_record", []mapping.ColumnMapping{
		{SourceColumn: "CAPA No", TargetField: "capaId", Confidence: 0.8, AutoMapped: true},
		{SourceColumn: "Opened", TargetField: "openDate", Confidence: 0.7, AutoMapped: true},
		{SourceColumn: "Description", TargetField: "description", Confidence: 1, AutoMapped: true},
	}, columns, schema)
	if err := s.ApplySuggestion(cfg, t0); err != nil {
		t.Fatalf("suggest: %v", err)
	}
	return s, schema
}

func TestSessionSuggestedFlow(t *testing.T) {
	s, schema := suggestedSession(t)
	if s.State != StateSuggested || s.Verified {
		t.Fatalf("unexpected state %s verified=%v", s.State, s.Verified)
	}
	if err := s.CanCommit(); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("suggested session must not commit, got %v", err)
	}

	err := s.Verify(schema, t0)
	var missing *MissingFieldsError
	if !errors.As(err, &missing) || len(missing.Fields) != 1 || missing.Fields[0] != "capaStatus" {
		t.Fatalf("expected capaStatus missing, got %v", err)
	}
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("missing fields error should unwrap to ErrMissingRequired")
	}

	if err := s.SetMapping(schema, "Status", "capaStatus", t0); err != nil {
		t.Fatalf("set mapping: %v", err)
	}
	if s.State != StatePendingVerification {
		t.Fatalf("expected pending verification, got %s", s.State)
	}
	m := s.Config.Mappings[len(s.Config.Mappings)-1]
	if m.Confidence != 1 || m.AutoMapped {
		t.Fatalf("manual mapping should be confidence 1 and not auto: %+v", m)
	}
	if len(s.Config.UnmappedSource) != 1 || s.Config.UnmappedSource[0] != "Notes" {
		t.Fatalf("unexpected unmapped sources %v", s.Config.UnmappedSource)
	}

	if err := s.Verify(schema, t0); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := s.CanSaveProfile(); err != nil {
		t.Fatalf("verified session should allow profile save: %v", err)
	}
	if err := s.MarkCommitted(CommitOutcome{AtomsCreated: 2}, t0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if s.State != StateCommitted || s.Result.AtomsCreated != 2 {
		t.Fatalf("unexpected committed session %+v", s)
	}
	if err := s.SetMapping(schema, "Notes", "rootCause", t0); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("committed session must be terminal, got %v", err)
	}
	if err := s.MarkCommitted(CommitOutcome{}, t0); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second commit must be rejected, got %v", err)
	}
	want := []State{StateProfileLookup, StateSuggested, StatePendingVerification, StateVerified, StateCommitted}
	if len(s.History) != len(want) {
		t.Fatalf("unexpected history %+v", s.History)
	}
	for i, st := range want {
		if s.History[i].To != st {
			t.Fatalf("history[%d] = %s, want %s", i, s.History[i].To, st)
		}
	}
}

func TestSessionEditResetsAutoApplied(t *testing.T) {
	schema := capaSchema(t)
	s := NewSession("s-2", "tenant-a", "case-1", "capa_record", "capa", t0)
	columns := []string{"CAPA No", "Opened", "Description", "Status"}
	_ = s.AttachParse(columns, nil, t0)
	cfg := mapping.Complete("capa_record", []mapping.ColumnMapping{
		{SourceColumn: "CAPA No", TargetField: "capaId", Confidence: 1, AutoMapped: true},
		{SourceColumn: "Opened", TargetField: "openDate", Confidence: 1, AutoMapped: true},
		{SourceColumn: "Description", TargetField: "description", Confidence: 1, AutoMapped: true},
		{SourceColumn: "Status", TargetField: "capaStatus", Confidence: 1, AutoMapped: true},
	}, columns, schema)
	if err := s.ApplyProfile("p-1", cfg, t0); err != nil {
		t.Fatalf("apply profile: %v", err)
	}
	if !s.Verified {
		t.Fatalf("auto-applied session should carry the profile's verified flag")
	}
	if err := s.CanCommit(); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("auto-applied session must be verified before commit, got %v", err)
	}
	if err := s.CanSaveProfile(); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("auto-applied session is not explicitly verified, got %v", err)
	}

	if err := s.RemoveMapping(schema, "Status", t0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Verified || s.State != StatePendingVerification {
		t.Fatalf("edit must reset verification, got %s %v", s.State, s.Verified)
	}
	if err := s.CanCommit(); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("edited session must not commit, got %v", err)
	}
}

func TestSessionEditValidation(t *testing.T) {
	s, schema := suggestedSession(t)
	cases := []struct {
		name   string
		source string
		target string
		want   error
	}{
		{"unknown column", "Missing", "rootCause", ErrUnknownSourceColumn},
		{"unknown field", "Notes", "colour", ErrUnknownTargetField},
		{"claimed target", "Notes", "capaId", ErrTargetClaimed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.SetMapping(schema, tc.source, tc.target, t0); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if s.State != StateSuggested {
		t.Fatalf("rejected edits must not change state, got %s", s.State)
	}
	if err := s.RemoveMapping(schema, "Notes", t0); !errors.Is(err, ErrColumnNotMapped) {
		t.Fatalf("expected not mapped, got %v", err)
	}

	if err := s.SetMapping(schema, "CAPA No", "rootCause", t0); err != nil {
		t.Fatalf("retarget: %v", err)
	}
	if target, _ := s.Config.TargetOf("CAPA No"); target != "rootCause" {
		t.Fatalf("retarget not applied, got %q", target)
	}
	if _, ok := s.Config.SourceOf("capaId"); ok {
		t.Fatalf("old target should be released")
	}
}

func TestSessionTransitionGuards(t *testing.T) {
	s := NewSession("s-3", "tenant-a", "case-1", "capa_record", "capa", t0)
	if err := s.ApplySuggestion(mapping.Config{}, t0); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("suggestion before parse must fail, got %v", err)
	}
	if err := s.AttachParse(nil, nil, t0); !errors.Is(err, ErrNoColumns) {
		t.Fatalf("expected no columns, got %v", err)
	}
	if err := s.AttachParse([]string{"a"}, nil, t0); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := s.AttachParse([]string{"a"}, nil, t0); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second attach must fail, got %v", err)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s, _ := suggestedSession(t)
	c := s.Clone()
	c.Columns[0] = "changed"
	c.Config.Mappings[0].TargetField = "changed"
	if s.Columns[0] == "changed" || s.Config.Mappings[0].TargetField == "changed" {
		t.Fatalf("clone shares state with original")
	}
}

func TestSessionAutoAppliedPartialProfileNeedsVerify(t *testing.T) {
	schema := capaSchema(t)
	s := NewSession("s-3", "tenant-a", "case-1", "capa_record", "capa", t0)
	columns := []string{"closed", "ID"}
	_ = s.AttachParse(columns, nil, t0)
	cfg := mapping.Complete("capa_record", []mapping.ColumnMapping{
		{SourceColumn: "closed", TargetField: "closeDate", Confidence: 1, AutoMapped: true},
	}, columns, schema)
	if err := s.ApplyProfile("p-partial", cfg, t0); err != nil {
		t.Fatalf("apply profile: %v", err)
	}
	if err := s.MarkCommitted(CommitOutcome{}, t0); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("auto-applied session must not commit before verify, got %v", err)
	}
	var missing *MissingFieldsError
	if err := s.Verify(schema, t0); !errors.As(err, &missing) || len(missing.Fields) != 4 {
		t.Fatalf("verify should list the four unmapped required fields, got %v", err)
	}
	if s.State != StateAutoApplied || s.Result != nil {
		t.Fatalf("failed verify must leave the session untouched, got %s", s.State)
	}
}
