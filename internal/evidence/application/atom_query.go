package application

import (
	"context"
	"errors"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/catalog"
	evidence "psur-evidence/internal/evidence/domain"
	mapping "psur-evidence/internal/mapping/domain"
)

// AtomQuery reads committed atoms for export.
type AtomQuery struct {
	store   evidence.AtomStore
	cases   *CaseService
	catalog *catalog.Catalog
}

// NewAtomQuery constructs an atom query service.
func NewAtomQuery(store evidence.AtomStore, cases *CaseService, c *catalog.Catalog) (*AtomQuery, error) {
	if store == nil {
		return nil, errors.New("atom query: nil store")
	}
	if cases == nil {
		return nil, errors.New("atom query: nil case service")
	}
	if c == nil {
		return nil, errors.New("atom query: nil catalog")
	}
	return &AtomQuery{store: store, cases: cases, catalog: c}, nil
}

// List returns the atoms of one evidence type together with its schema.
func (q *AtomQuery) List(ctx context.Context, caseID string, t catalog.EvidenceType) (catalog.Schema, []evidence.Atom, error) {
	schema, ok := q.catalog.Schema(t)
	if !ok {
		return catalog.Schema{}, nil, apperr.New(apperr.KindValidation, "atoms.list", mapping.ErrUnknownEvidenceType)
	}
	if _, err := q.cases.Get(ctx, caseID); err != nil {
		return catalog.Schema{}, nil, err
	}
	atoms, err := q.store.ListAtoms(ctx, caseID, t)
	if err != nil {
		return catalog.Schema{}, nil, err
	}
	return schema, atoms, nil
}
