package application

import (
	"context"
	"errors"
	"strings"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	evidence "psur-evidence/internal/evidence/domain"
)

// CaseService reads PSUR cases on behalf of the calling tenant.
type CaseService struct {
	repo    evidence.CaseRepository
	catalog *catalog.Catalog
}

// NewCaseService constructs a case service.
func NewCaseService(repo evidence.CaseRepository, c *catalog.Catalog) (*CaseService, error) {
	if repo == nil {
		return nil, errors.New("case service: nil repository")
	}
	if c == nil {
		return nil, errors.New("case service: nil catalog")
	}
	return &CaseService{repo: repo, catalog: c}, nil
}

// Get loads a case visible to the calling tenant.
func (s *CaseService) Get(ctx context.Context, caseID string) (*evidence.Case, error) {
	if strings.TrimSpace(caseID) == "" {
		return nil, apperr.Validation("case.get", "case id required")
	}
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.KindNotFound, "case.get", evidence.ErrCaseNotFound)
	}
	if tenantID := auth.TenantIDFromContext(ctx); tenantID != "" && c.TenantID != tenantID {
		return nil, apperr.New(apperr.KindNotFound, "case.get", evidence.ErrCaseNotFound)
	}
	return c, nil
}

// CaseTenant reports the owning tenant of a case.
func (s *CaseService) CaseTenant(ctx context.Context, caseID string) (string, bool, error) {
	c, err := s.repo.Get(ctx, caseID)
	if err != nil || c == nil {
		return "", false, err
	}
	return c.TenantID, true, nil
}

// RequiredTypes resolves the evidence types the case template demands.
func (s *CaseService) RequiredTypes(c *evidence.Case) ([]catalog.EvidenceType, error) {
	if c == nil {
		return nil, errors.New("case service: nil case")
	}
	tpl, ok := s.catalog.Template(c.TemplateID)
	if !ok {
		return nil, apperr.Validation("case.template", "unknown template %q for case %s", c.TemplateID, c.ID)
	}
	return tpl.RequiredTypes, nil
}
