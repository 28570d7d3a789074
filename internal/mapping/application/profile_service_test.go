package application

import (
	"context"
	"errors"
	"testing"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	"psur-evidence/internal/mapping/infrastructure/memory"
)

func newProfileService(t *testing.T) *ProfileService {
	t.Helper()
	svc, err := NewProfileService(memory.NewProfileRepository(), catalog.Default(), "tenant-default", nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func complaintMappings() map[string]string {
	return map[string]string{
		"Complaint ID":  "complaintId",
		"Date Received": "complaintDate",
		"Desc":          "description",
		"Severity":      "severity",
		"Country":       "region",
	}
}

func TestProfileServiceSaveAndMatch(t *testing.T) {
	svc := newProfileService(t)
	ctx := context.Background()

	saved, err := svc.Save(ctx, SaveProfileRequest{
		Name:         "CRM export",
		EvidenceType: "complaint_record",
		Mappings:     complaintMappings(),
		Verified:     true,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" || saved.TenantID != "tenant-default" || saved.Signature == "" {
		t.Fatalf("unexpected saved profile %+v", saved)
	}

	match, err := svc.FindMatch(ctx, "complaint_record", []string{"Complaint ID", "Date Received", "Desc", "Severity"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if match != nil {
		t.Fatalf("4 of 5 columns must not match, got %+v", match)
	}

	match, err = svc.FindMatch(ctx, "complaint_record", []string{"complaint id", "date_received", "DESC", "Severity", "Country", "Notes"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if match == nil || match.Profile.ID != saved.ID || !match.CanAutoApply {
		t.Fatalf("expected auto-applicable match, got %+v", match)
	}

	cfg, ok := svc.Apply(match.Profile, []string{"complaint id", "date_received", "DESC", "Severity", "Country", "Notes"})
	if !ok || len(cfg.Mappings) != 5 || cfg.Mappings[0].SourceColumn != "complaint id" {
		t.Fatalf("unexpected applied config %+v", cfg)
	}

	if err := svc.MarkApplied(ctx, saved.ID); err != nil {
		t.Fatalf("mark applied: %v", err)
	}
	got, err := svc.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UsageCount != 1 {
		t.Fatalf("expected usage 1, got %d", got.UsageCount)
	}
}

func TestProfileServiceResaveReplacesInPlace(t *testing.T) {
	svc := newProfileService(t)
	ctx := context.Background()

	first, err := svc.Save(ctx, SaveProfileRequest{Name: "v1", EvidenceType: "complaint_record", Mappings: complaintMappings()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = svc.MarkApplied(ctx, first.ID)

	updated := complaintMappings()
	updated["Country"] = "region"
	updated["Severity"] = "severity"
	second, err := svc.Save(ctx, SaveProfileRequest{Name: "v2", EvidenceType: "complaint_record", Mappings: updated, Verified: true})
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resave should keep id %s, got %s", first.ID, second.ID)
	}
	list, err := svc.List(ctx, "complaint_record")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "v2" || list[0].UsageCount != 0 || !list[0].Verified {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestProfileServiceValidation(t *testing.T) {
	svc := newProfileService(t)
	ctx := context.Background()
	cases := []SaveProfileRequest{
		{Name: "", EvidenceType: "complaint_record", Mappings: complaintMappings()},
		{Name: "x", EvidenceType: "complaint_record"},
		{Name: "x", EvidenceType: "nope", Mappings: complaintMappings()},
		{Name: "x", EvidenceType: "complaint_record", Mappings: map[string]string{"A": "notAField"}},
		{Name: "x", EvidenceType: "complaint_record", Mappings: map[string]string{"A": "severity", "B": "severity"}},
	}
	for i, req := range cases {
		_, err := svc.Save(ctx, req)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestProfileServiceTenantIsolation(t *testing.T) {
	svc := newProfileService(t)
	tenantA := auth.WithIdentity(context.Background(), "tenant-a", auth.RoleOperator, "u1")
	tenantB := auth.WithIdentity(context.Background(), "tenant-b", auth.RoleOperator, "u2")

	saved, err := svc.Save(tenantA, SaveProfileRequest{Name: "a", EvidenceType: "complaint_record", Mappings: complaintMappings(), Verified: true})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	columns := []string{"Complaint ID", "Date Received", "Desc", "Severity", "Country"}
	if match, _ := svc.FindMatch(tenantB, "complaint_record", columns); match != nil {
		t.Fatalf("tenant b must not see tenant a profiles")
	}
	if _, err := svc.Get(tenantB, saved.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
}
