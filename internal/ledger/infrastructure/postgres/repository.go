package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	ledger "psur-evidence/internal/ledger/domain"
)

const defaultJustificationsTable = "na_justifications"

// Repository is a Postgres append-only justification ledger. It only ever
// inserts; the table carries no update path.
type Repository struct {
	db    *sql.DB
	table string
}

// Option configures the repository.
type Option func(*Repository)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB, opts ...Option) *Repository {
	repo := &Repository{db: db, table: defaultJustificationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Append inserts an entry.
func (r *Repository) Append(ctx context.Context, j ledger.Justification) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	types, err := json.Marshal(j.EvidenceTypes)
	if err != nil {
		return err
	}
	var reason sql.NullString
	if j.Reason != nil {
		reason = sql.NullString{String: *j.Reason, Valid: true}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, case_id, device_code, evidence_types, reason, period_start, period_end, recorded_by, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, r.table)
	_, err = r.db.ExecContext(ctx, query, j.ID, j.CaseID, j.DeviceCode, types, reason,
		j.PeriodStart, j.PeriodEnd, j.RecordedBy, j.RecordedAt)
	return err
}

// ListByCase returns entries ordered by recorded_at.
func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]ledger.Justification, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, case_id, device_code, evidence_types, reason, period_start, period_end, recorded_by, recorded_at
FROM %s
WHERE case_id = $1
ORDER BY recorded_at ASC, id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Justification
	for rows.Next() {
		var j ledger.Justification
		var types []byte
		var reason sql.NullString
		if err := rows.Scan(&j.ID, &j.CaseID, &j.DeviceCode, &types, &reason,
			&j.PeriodStart, &j.PeriodEnd, &j.RecordedBy, &j.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(types, &j.EvidenceTypes); err != nil {
			return nil, fmt.Errorf("ledger repo: decode types: %w", err)
		}
		if reason.Valid {
			text := reason.String
			j.Reason = &text
		}
		j.PeriodStart = j.PeriodStart.UTC()
		j.PeriodEnd = j.PeriodEnd.UTC()
		j.RecordedAt = j.RecordedAt.UTC()
		result = append(result, j)
	}
	return result, rows.Err()
}
