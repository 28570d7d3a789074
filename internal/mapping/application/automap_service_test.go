package application

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/catalog"
	mapping "psur-evidence/internal/mapping/domain"
)

type stubRemote struct {
	mappings []mapping.ColumnMapping
	err      error
	calls    int
}

func (s *stubRemote) Map(ctx context.Context, schema catalog.Schema, aliases map[string][]string, columns []string) ([]mapping.ColumnMapping, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]mapping.ColumnMapping(nil), s.mappings...), nil
}

var complaintColumns = []string{"Complaint ID", "Date Received", "Desc", "Severity"}

func localConfig(t *testing.T) mapping.Config {
	t.Helper()
	return mapping.NewMatcher(catalog.Default()).Match(complaintColumns, "complaint_record")
}

func TestAutoMapFallsBackWhenRemoteUnavailable(t *testing.T) {
	remote := &stubRemote{err: errors.New("dial tcp: connection refused")}
	svc, err := NewAutoMapService(catalog.Default(), WithRemoteMapper(remote))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg, err := svc.AutoMap(context.Background(), "complaint_record", complaintColumns)
	if err != nil {
		t.Fatalf("fallback must not surface an error: %v", err)
	}
	if remote.calls != 1 {
		t.Fatalf("remote should be consulted once, got %d", remote.calls)
	}
	if !reflect.DeepEqual(cfg, localConfig(t)) {
		t.Fatalf("fallback result differs from local matcher:\n%+v", cfg)
	}
}

func TestAutoMapRejectsInvalidRemoteResult(t *testing.T) {
	remote := &stubRemote{mappings: []mapping.ColumnMapping{
		{SourceColumn: "Complaint ID", TargetField: "complaintId", Confidence: 0.9},
		{SourceColumn: "Desc", TargetField: "complaintId", Confidence: 0.9},
	}}
	svc, _ := NewAutoMapService(catalog.Default(), WithRemoteMapper(remote))
	cfg, err := svc.AutoMap(context.Background(), "complaint_record", complaintColumns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, localConfig(t)) {
		t.Fatalf("invalid remote result should fall back to local:\n%+v", cfg)
	}
}

func TestAutoMapUsesValidRemoteResult(t *testing.T) {
	remote := &stubRemote{mappings: []mapping.ColumnMapping{
		{SourceColumn: "Desc", TargetField: "description", Confidence: 0.88},
	}}
	svc, _ := NewAutoMapService(catalog.Default(), WithRemoteMapper(remote))
	cfg, err := svc.AutoMap(context.Background(), "complaint_record", complaintColumns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Mappings) != 1 || !cfg.Mappings[0].AutoMapped || cfg.Mappings[0].Confidence != 0.88 {
		t.Fatalf("unexpected remote config %+v", cfg)
	}
	if len(cfg.UnmappedSource) != 3 || len(cfg.UnmappedTarget) != 9 {
		t.Fatalf("unmapped sets not recomputed: %+v", cfg)
	}
}

func TestAutoMapUnknownType(t *testing.T) {
	svc, _ := NewAutoMapService(catalog.Default())
	_, err := svc.AutoMap(context.Background(), "unknown", complaintColumns)
	if !errors.Is(err, apperr.ErrValidation) || !errors.Is(err, mapping.ErrUnknownEvidenceType) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
