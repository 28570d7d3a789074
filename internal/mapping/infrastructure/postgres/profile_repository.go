package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"psur-evidence/internal/catalog"
	mapping "psur-evidence/internal/mapping/domain"
)

const defaultProfilesTable = "mapping_profiles"

// ProfileRepository is a Postgres implementation for mapping profiles.
type ProfileRepository struct {
	db    *sql.DB
	table string
}

// ProfileOption configures the repository.
type ProfileOption func(*ProfileRepository)

// WithProfileTable overrides the table name.
func WithProfileTable(table string) ProfileOption {
	return func(repo *ProfileRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewProfileRepository constructs a repository.
func NewProfileRepository(db *sql.DB, opts ...ProfileOption) *ProfileRepository {
	repo := &ProfileRepository{db: db, table: defaultProfilesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ListByEvidenceType loads a tenant's profiles for one evidence type.
func (r *ProfileRepository) ListByEvidenceType(ctx context.Context, tenantID string, t catalog.EvidenceType) ([]mapping.Profile, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("profile repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, tenant_id, name, evidence_type, column_mappings, signature, verified, usage_count, created_at, updated_at
FROM %s
WHERE tenant_id = $1 AND evidence_type = $2
ORDER BY name ASC, id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []mapping.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get loads a profile by id; nil when missing.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*mapping.Profile, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("profile repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, tenant_id, name, evidence_type, column_mappings, signature, verified, usage_count, created_at, updated_at
FROM %s
WHERE id = $1`, r.table)

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return profile, err
}

// Save upserts by (tenant, evidence type, signature), keeping the stored id
// and creation time and resetting usage.
func (r *ProfileRepository) Save(ctx context.Context, profile *mapping.Profile) error {
	if r == nil || r.db == nil {
		return errors.New("profile repo: nil db")
	}
	if profile == nil {
		return mapping.ErrNilProfile
	}
	payload, err := json.Marshal(profile.ColumnMappings)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	evidence_type,
	column_mappings,
	signature,
	verified,
	usage_count
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, 0
)
ON CONFLICT (tenant_id, evidence_type, signature)
DO UPDATE SET
	name = EXCLUDED.name,
	column_mappings = EXCLUDED.column_mappings,
	verified = EXCLUDED.verified,
	usage_count = 0,
	updated_at = NOW()
RETURNING id, usage_count, created_at, updated_at`, r.table)

	err = r.db.QueryRowContext(
		ctx,
		query,
		profile.ID,
		profile.TenantID,
		profile.Name,
		string(profile.EvidenceType),
		payload,
		profile.Signature,
		profile.Verified,
	).Scan(&profile.ID, &profile.UsageCount, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return err
	}
	profile.CreatedAt = profile.CreatedAt.UTC()
	profile.UpdatedAt = profile.UpdatedAt.UTC()
	return nil
}

// IncrementUsage bumps the usage count and returns the new value.
func (r *ProfileRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("profile repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET usage_count = usage_count + 1
WHERE id = $1
RETURNING usage_count`, r.table)

	var count int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("profile repo: profile not found")
		}
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*mapping.Profile, error) {
	var profile mapping.Profile
	var evidenceType string
	var payload []byte
	if err := row.Scan(
		&profile.ID,
		&profile.TenantID,
		&profile.Name,
		&evidenceType,
		&payload,
		&profile.Signature,
		&profile.Verified,
		&profile.UsageCount,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}
	profile.EvidenceType = catalog.EvidenceType(evidenceType)
	if err := json.Unmarshal(payload, &profile.ColumnMappings); err != nil {
		return nil, fmt.Errorf("profile repo: decode mappings: %w", err)
	}
	profile.CreatedAt = profile.CreatedAt.UTC()
	profile.UpdatedAt = profile.UpdatedAt.UTC()
	return &profile, nil
}
