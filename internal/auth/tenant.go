package auth

import (
	"context"
	"errors"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// CaseOwnerLookup resolves the tenant that owns a PSUR case.
type CaseOwnerLookup interface {
	CaseTenant(ctx context.Context, caseID string) (tenantID string, found bool, err error)
}

// CaseTenantChecker validates case tenant ownership.
type CaseTenantChecker interface {
	EnsureCaseTenant(ctx context.Context, tenantID, caseID string) error
}

// CaseChecker checks case ownership using the case store.
type CaseChecker struct {
	lookup CaseOwnerLookup
}

// NewCaseChecker constructs a CaseChecker.
func NewCaseChecker(lookup CaseOwnerLookup) *CaseChecker {
	if lookup == nil {
		return nil
	}
	return &CaseChecker{lookup: lookup}
}

// EnsureCaseTenant verifies the case belongs to tenant.
func (c *CaseChecker) EnsureCaseTenant(ctx context.Context, tenantID, caseID string) error {
	if c == nil || c.lookup == nil {
		return nil
	}
	if tenantID == "" || caseID == "" {
		return nil
	}
	owner, found, err := c.lookup.CaseTenant(ctx, caseID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if owner != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
