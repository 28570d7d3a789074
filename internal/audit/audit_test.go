package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"psur-evidence/internal/auth"
)

func TestNewEntryCarriesIdentity(t *testing.T) {
	ctx := auth.WithIdentity(context.Background(), "tenant-a", auth.RoleOperator, "user-1")
	ctx = WithClient(ctx, "10.0.0.1", "curl/8")
	entry := NewEntry(ctx, ActionNotApplicable, "na_justification", "na-1", "case-1", map[string]string{"reason": "none"})

	if entry.TenantID != "tenant-a" || entry.Actor != "user-1" || entry.Role != "operator" {
		t.Fatalf("identity not captured: %+v", entry)
	}
	if entry.IP != "10.0.0.1" || entry.UserAgent != "curl/8" {
		t.Fatalf("client not captured: %+v", entry)
	}
	if entry.PayloadDigest == "" || string(entry.Metadata) != `{"reason":"none"}` {
		t.Fatalf("metadata not captured: %+v", entry)
	}
}

func TestMemoryLoggerListFilters(t *testing.T) {
	logger := NewMemoryLogger()
	ctx := context.Background()
	_ = logger.Log(ctx, Entry{TenantID: "a", CaseID: "c1", Action: "one"})
	_ = logger.Log(ctx, Entry{TenantID: "a", CaseID: "c2", Action: "two"})
	_ = logger.Log(ctx, Entry{TenantID: "b", CaseID: "c1", Action: "three"})
	_ = logger.Log(ctx, Entry{TenantID: "a", CaseID: "c1", Action: "four"})

	entries, err := logger.List(ctx, "a", "c1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "four" || entries[1].Action != "one" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", entries[0])
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := ClientIP(req); ip != "203.0.113.9" {
		t.Fatalf("unexpected ip %q", ip)
	}
	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if ip := ClientIP(req); ip != "192.0.2.1" {
		t.Fatalf("unexpected ip %q", ip)
	}
}
