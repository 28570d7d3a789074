package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"psur-evidence/internal/catalog"
	mapping "psur-evidence/internal/mapping/domain"
)

// ProfileRepository is an in-memory profile store for demo/testing.
type ProfileRepository struct {
	mu    sync.RWMutex
	byID  map[string]*mapping.Profile
	byKey map[profileKey]string
}

type profileKey struct {
	tenantID     string
	evidenceType catalog.EvidenceType
	signature    string
}

// NewProfileRepository constructs a repository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		byID:  make(map[string]*mapping.Profile),
		byKey: make(map[profileKey]string),
	}
}

// ListByEvidenceType returns profiles ordered by name then id.
func (r *ProfileRepository) ListByEvidenceType(ctx context.Context, tenantID string, t catalog.EvidenceType) ([]mapping.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []mapping.Profile
	for _, p := range r.byID {
		if p.TenantID == tenantID && p.EvidenceType == t {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Get loads a profile by id; nil when missing.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*mapping.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	clone := p.Clone()
	return &clone, nil
}

// Save upserts by (tenant, evidence type, signature).
func (r *ProfileRepository) Save(ctx context.Context, profile *mapping.Profile) error {
	_ = ctx
	if profile == nil {
		return mapping.ErrNilProfile
	}
	if profile.ID == "" {
		return errors.New("profile repo: empty id")
	}
	key := profileKey{tenantID: profile.TenantID, evidenceType: profile.EvidenceType, signature: profile.Signature}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existingID, ok := r.byKey[key]; ok {
		existing := r.byID[existingID]
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UsageCount = 0
	profile.UpdatedAt = now
	stored := profile.Clone()
	r.byID[stored.ID] = &stored
	r.byKey[key] = stored.ID
	return nil
}

// IncrementUsage bumps the usage count and returns the new value.
func (r *ProfileRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return 0, errors.New("profile repo: profile not found")
	}
	p.UsageCount++
	return p.UsageCount, nil
}
