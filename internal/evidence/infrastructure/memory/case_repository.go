package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	evidence "psur-evidence/internal/evidence/domain"
)

// CaseRepository is an in-memory case store seeded at startup.
type CaseRepository struct {
	mu    sync.RWMutex
	cases map[string]evidence.Case
}

// NewCaseRepository constructs a repository holding cases.
func NewCaseRepository(cases ...evidence.Case) *CaseRepository {
	repo := &CaseRepository{cases: make(map[string]evidence.Case, len(cases))}
	for _, c := range cases {
		repo.Put(c)
	}
	return repo
}

// LoadCaseSeed reads cases from a YAML file of the form `cases: [...]`.
func LoadCaseSeed(path string) ([]evidence.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("case seed: %w", err)
	}
	var file struct {
		Cases []evidence.Case `yaml:"cases"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("case seed: parse %s: %w", path, err)
	}
	for i, c := range file.Cases {
		if c.ID == "" || c.TenantID == "" || c.TemplateID == "" {
			return nil, fmt.Errorf("case seed: entry %d needs id, tenant_id and template_id", i)
		}
	}
	return file.Cases, nil
}

// Put stores or replaces a case.
func (r *CaseRepository) Put(c evidence.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = c
}

// Get loads a case; nil when missing.
func (r *CaseRepository) Get(ctx context.Context, id string) (*evidence.Case, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
