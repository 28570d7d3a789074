package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	evidence "psur-evidence/internal/evidence/domain"
)

const defaultCasesTable = "psur_cases"

// CaseRepository reads PSUR cases from Postgres.
type CaseRepository struct {
	db    *sql.DB
	table string
}

// NewCaseRepository constructs a repository.
func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db, table: defaultCasesTable}
}

// Get loads a case; nil when missing.
func (r *CaseRepository) Get(ctx context.Context, id string) (*evidence.Case, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("case repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, tenant_id, device_code, template_id, start_period, end_period
FROM %s
WHERE id = $1`, r.table)

	var c evidence.Case
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.TenantID,
		&c.DeviceCode,
		&c.TemplateID,
		&c.StartPeriod,
		&c.EndPeriod,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.StartPeriod = c.StartPeriod.UTC()
	c.EndPeriod = c.EndPeriod.UTC()
	return &c, nil
}
