package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/audit"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	evidenceapp "psur-evidence/internal/evidence/application"
	evidence "psur-evidence/internal/evidence/domain"
	evidencememory "psur-evidence/internal/evidence/infrastructure/memory"
	"psur-evidence/internal/ledger/infrastructure/memory"
)

func newLedgerService(t *testing.T) (*Service, *audit.MemoryLogger) {
	t.Helper()
	cases, err := evidenceapp.NewCaseService(evidencememory.NewCaseRepository(evidence.Case{
		ID: "case-1", TenantID: "tenant-a", DeviceCode: "DEV-1", TemplateID: "pmsr_class_i",
	}), catalog.Default())
	if err != nil {
		t.Fatalf("case service: %v", err)
	}
	auditLog := audit.NewMemoryLogger()
	svc, err := NewService(memory.NewRepository(), cases, catalog.Default(), auditLog, nil)
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	return svc, auditLog
}

func markRequest(types ...catalog.EvidenceType) MarkRequest {
	return MarkRequest{
		CaseID:        "case-1",
		PeriodStart:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		EvidenceTypes: types,
		Reason:        "no recalls this period",
	}
}

func TestMarkNotApplicableAppends(t *testing.T) {
	svc, auditLog := newLedgerService(t)
	ctx := auth.WithIdentity(context.Background(), "tenant-a", auth.RoleOperator, "qa-1")

	first, err := svc.MarkNotApplicable(ctx, markRequest("recall_record"))
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if first.DeviceCode != "DEV-1" || first.RecordedBy != "qa-1" || first.ReasonText() != "no recalls this period" {
		t.Fatalf("unexpected entry %+v", first)
	}
	if _, err := svc.MarkNotApplicable(ctx, markRequest("recall_record")); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	list, err := svc.List(ctx, "case-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("entries must never be deduplicated across calls, got %d", len(list))
	}
	entries, _ := auditLog.List(ctx, "tenant-a", "case-1", 10)
	if len(entries) != 2 || entries[0].Action != audit.ActionNotApplicable {
		t.Fatalf("expected audit entries, got %+v", entries)
	}
}

func TestMarkNotApplicableValidation(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()

	if _, err := svc.MarkNotApplicable(ctx, markRequest()); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty types should be a validation error, got %v", err)
	}
	if _, err := svc.MarkNotApplicable(ctx, markRequest("nope")); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown type should be a validation error, got %v", err)
	}
	req := markRequest("capa_record")
	req.CaseID = "case-404"
	if _, err := svc.MarkNotApplicable(ctx, req); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown case should be not found, got %v", err)
	}
	list, _ := svc.List(ctx, "case-1")
	if len(list) != 0 {
		t.Fatalf("rejected requests must not append, got %d", len(list))
	}
}
