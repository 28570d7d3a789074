package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"psur-evidence/internal/catalog"
	ledger "psur-evidence/internal/ledger/domain"
)

// Repository is an in-memory append-only ledger.
type Repository struct {
	mu      sync.RWMutex
	entries map[string][]ledger.Justification
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{entries: make(map[string][]ledger.Justification)}
}

// Append stores an entry.
func (r *Repository) Append(ctx context.Context, j ledger.Justification) error {
	_ = ctx
	if j.ID == "" {
		return errors.New("ledger repo: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[j.CaseID] = append(r.entries[j.CaseID], clone(j))
	return nil
}

// ListByCase returns entries ordered by RecordedAt.
func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]ledger.Justification, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.entries[caseID]
	out := make([]ledger.Justification, 0, len(list))
	for _, j := range list {
		out = append(out, clone(j))
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].RecordedAt.Before(out[k].RecordedAt) })
	return out, nil
}

func clone(j ledger.Justification) ledger.Justification {
	j.EvidenceTypes = append([]catalog.EvidenceType(nil), j.EvidenceTypes...)
	if j.Reason != nil {
		reason := *j.Reason
		j.Reason = &reason
	}
	return j
}
