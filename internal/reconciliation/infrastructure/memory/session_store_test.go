package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	reconciliation "psur-evidence/internal/reconciliation/domain"
)

func TestSessionStoreUpdateIsolation(t *testing.T) {
	store := NewSessionStore(time.Hour)
	ctx := context.Background()
	s := reconciliation.NewSession("s-1", "t", "case-1", "capa_record", "capa", time.Now())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.CaseID = "mutated"

	got, err := store.Get(ctx, "s-1")
	if err != nil || got.CaseID != "case-1" {
		t.Fatalf("store leaked caller mutation: %+v %v", got, err)
	}

	boom := errors.New("boom")
	_, err = store.Update(ctx, "s-1", func(s *reconciliation.Session) error {
		s.CaseID = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ = store.Get(ctx, "s-1")
	if got.CaseID != "case-1" {
		t.Fatalf("failed update must not persist, got %q", got.CaseID)
	}
}

func TestSessionStoreConcurrentUpdates(t *testing.T) {
	store := NewSessionStore(time.Hour)
	ctx := context.Background()
	_ = store.Create(ctx, reconciliation.NewSession("s-1", "t", "case-1", "capa_record", "capa", time.Now()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "s-1", func(s *reconciliation.Session) error {
				s.Columns = append(s.Columns, "c")
				return nil
			})
		}()
	}
	wg.Wait()
	got, _ := store.Get(ctx, "s-1")
	if len(got.Columns) != 50 {
		t.Fatalf("expected 50 serialized updates, got %d", len(got.Columns))
	}
}

func TestSessionStoreExpiryAndDelete(t *testing.T) {
	store := NewSessionStore(time.Hour)
	ctx := context.Background()
	_ = store.Create(ctx, reconciliation.NewSession("s-1", "t", "case-1", "capa_record", "capa", time.Now()))
	if err := store.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s-1"); !errors.Is(err, reconciliation.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, "s-1"); !errors.Is(err, reconciliation.ErrSessionNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("expected empty store")
	}
}
