package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"psur-evidence/internal/catalog"
	evidence "psur-evidence/internal/evidence/domain"
)

const (
	defaultAtomsTable   = "evidence_atoms"
	defaultUploadsTable = "source_uploads"
)

// AtomStore is a Postgres implementation for evidence atoms and uploads.
type AtomStore struct {
	db           *sql.DB
	atomsTable   string
	uploadsTable string
}

// AtomStoreOption configures the store.
type AtomStoreOption func(*AtomStore)

// WithAtomTables overrides the table names.
func WithAtomTables(atoms, uploads string) AtomStoreOption {
	return func(s *AtomStore) {
		if atoms != "" {
			s.atomsTable = atoms
		}
		if uploads != "" {
			s.uploadsTable = uploads
		}
	}
}

// NewAtomStore constructs a store.
func NewAtomStore(db *sql.DB, opts ...AtomStoreOption) *AtomStore {
	s := &AtomStore{db: db, atomsTable: defaultAtomsTable, uploadsTable: defaultUploadsTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CommitBatch inserts new atoms and the upload record in one transaction.
func (s *AtomStore) CommitBatch(ctx context.Context, upload *evidence.SourceUpload, atoms []evidence.Atom) (err error) {
	if s == nil || s.db == nil {
		return errors.New("atom store: nil db")
	}
	if upload == nil {
		return errors.New("atom store: nil upload")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insertAtom := fmt.Sprintf(`
INSERT INTO %s (id, case_id, evidence_type, source_category, row_identity, data, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (case_id, evidence_type, row_identity) DO NOTHING`, s.atomsTable)
	stmt, err := tx.PrepareContext(ctx, insertAtom)
	if err != nil {
		return err
	}
	defer stmt.Close()

	created := 0
	for _, atom := range atoms {
		payload, marshalErr := json.Marshal(atom.Data)
		if marshalErr != nil {
			return fmt.Errorf("atom store: encode data: %w", marshalErr)
		}
		res, execErr := stmt.ExecContext(ctx, atom.ID, atom.CaseID, string(atom.EvidenceType), atom.SourceCategory,
			atom.RowIdentity, payload, atom.CreatedAt)
		if execErr != nil {
			return execErr
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return affErr
		}
		created += int(affected)
	}
	upload.AtomsCreated = created
	upload.DuplicatesSkipped += len(atoms) - created

	insertUpload := fmt.Sprintf(`
INSERT INTO %s (
	id, case_id, evidence_type, source_category, rows_received,
	atoms_created, duplicates_skipped, blank_rows_skipped, uploaded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.uploadsTable)
	if _, err = tx.ExecContext(ctx, insertUpload, upload.ID, upload.CaseID, string(upload.EvidenceType),
		upload.SourceCategory, upload.RowsReceived, upload.AtomsCreated, upload.DuplicatesSkipped,
		upload.BlankRowsSkipped, upload.UploadedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// CountByType returns atom counts per evidence type for a case.
func (s *AtomStore) CountByType(ctx context.Context, caseID string) (map[catalog.EvidenceType]int, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("atom store: nil db")
	}
	query := fmt.Sprintf(`
SELECT evidence_type, COUNT(*)
FROM %s
WHERE case_id = $1
GROUP BY evidence_type`, s.atomsTable)

	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[catalog.EvidenceType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[catalog.EvidenceType(t)] = n
	}
	return counts, rows.Err()
}

// ListUploads returns uploads for a case in commit order.
func (s *AtomStore) ListUploads(ctx context.Context, caseID string) ([]evidence.SourceUpload, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("atom store: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, case_id, evidence_type, source_category, rows_received,
	atoms_created, duplicates_skipped, blank_rows_skipped, uploaded_at
FROM %s
WHERE case_id = $1
ORDER BY uploaded_at ASC, id ASC`, s.uploadsTable)

	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []evidence.SourceUpload
	for rows.Next() {
		var u evidence.SourceUpload
		var t string
		if err := rows.Scan(&u.ID, &u.CaseID, &t, &u.SourceCategory, &u.RowsReceived,
			&u.AtomsCreated, &u.DuplicatesSkipped, &u.BlankRowsSkipped, &u.UploadedAt); err != nil {
			return nil, err
		}
		u.EvidenceType = catalog.EvidenceType(t)
		u.UploadedAt = u.UploadedAt.UTC()
		result = append(result, u)
	}
	return result, rows.Err()
}

// ListAtoms returns the atoms of one type for a case, oldest first.
func (s *AtomStore) ListAtoms(ctx context.Context, caseID string, t catalog.EvidenceType) ([]evidence.Atom, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("atom store: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, case_id, evidence_type, source_category, row_identity, data, created_at
FROM %s
WHERE case_id = $1 AND evidence_type = $2
ORDER BY created_at ASC, id ASC`, s.atomsTable)

	rows, err := s.db.QueryContext(ctx, query, caseID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []evidence.Atom
	for rows.Next() {
		var a evidence.Atom
		var et string
		var data []byte
		if err := rows.Scan(&a.ID, &a.CaseID, &et, &a.SourceCategory, &a.RowIdentity, &data, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &a.Data); err != nil {
			return nil, err
		}
		a.EvidenceType = catalog.EvidenceType(et)
		a.CreatedAt = a.CreatedAt.UTC()
		result = append(result, a)
	}
	return result, rows.Err()
}
