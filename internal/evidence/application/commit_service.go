package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/audit"
	"psur-evidence/internal/catalog"
	evidence "psur-evidence/internal/evidence/domain"
	"psur-evidence/internal/logging"
	mapping "psur-evidence/internal/mapping/domain"
	"psur-evidence/internal/observability/metrics"
)

// CommitRequest carries a verified mapping and the parsed rows of one upload.
type CommitRequest struct {
	CaseID         string
	EvidenceType   catalog.EvidenceType
	SourceCategory string
	Config         mapping.Config
	Rows           []evidence.Row
}

// CommitResult reports what a commit stored.
type CommitResult struct {
	UploadID          string `json:"upload_id"`
	AtomsCreated      int    `json:"atoms_created"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	BlankRowsSkipped  int    `json:"blank_rows_skipped"`
}

// CommitService turns mapped rows into evidence atoms.
type CommitService struct {
	store   evidence.AtomStore
	cases   *CaseService
	catalog *catalog.Catalog
	audit   audit.Logger
	logger  *logging.Logger
	now     func() time.Time
}

// NewCommitService constructs a commit service. auditLogger may be nil.
func NewCommitService(store evidence.AtomStore, cases *CaseService, c *catalog.Catalog, auditLogger audit.Logger, logger *logging.Logger) (*CommitService, error) {
	if store == nil {
		return nil, errors.New("commit service: nil store")
	}
	if cases == nil {
		return nil, errors.New("commit service: nil case service")
	}
	if c == nil {
		return nil, errors.New("commit service: nil catalog")
	}
	return &CommitService{
		store:   store,
		cases:   cases,
		catalog: c,
		audit:   auditLogger,
		logger:  logging.OrNop(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ResolveCategory returns the source category for an upload, defaulting to
// the evidence type's own category. The category must cover the type.
func (s *CommitService) ResolveCategory(t catalog.EvidenceType, category string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		category = s.catalog.CategoryOf(t)
	}
	cat, ok := s.catalog.Category(category)
	if !ok {
		return "", apperr.Validation("commit", "unknown source category %q", category)
	}
	for _, covered := range cat.Covers {
		if covered == t {
			return cat.Name, nil
		}
	}
	return "", apperr.Validation("commit", "source category %q does not cover %s", category, t)
}

// Commit persists one atom per distinct mapped row. Rows matching an
// existing atom are skipped and counted; an upload record is written for
// every accepted batch. A batch without rows is rejected.
func (s *CommitService) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	var out CommitResult
	defer func() {
		metrics.ObserveCommit(result, time.Since(start), out.AtomsCreated, out.DuplicatesSkipped)
	}()

	schema, ok := s.catalog.Schema(req.EvidenceType)
	if !ok {
		result = metrics.ResultError
		return CommitResult{}, apperr.New(apperr.KindValidation, "commit", mapping.ErrUnknownEvidenceType)
	}
	if _, err := s.cases.Get(ctx, req.CaseID); err != nil {
		result = metrics.ResultError
		return CommitResult{}, err
	}
	category, err := s.ResolveCategory(req.EvidenceType, req.SourceCategory)
	if err != nil {
		result = metrics.ResultError
		return CommitResult{}, err
	}
	if err := req.Config.Validate(schema, req.Config.Columns()); err != nil {
		result = metrics.ResultError
		return CommitResult{}, apperr.New(apperr.KindValidation, "commit", err)
	}
	if len(req.Rows) == 0 {
		result = metrics.ResultError
		return CommitResult{}, apperr.New(apperr.KindValidation, "commit", evidence.ErrNoRows)
	}

	now := s.now()
	batch := evidence.BuildAtoms(req.CaseID, schema, category, req.Config, req.Rows)
	for i := range batch.Atoms {
		batch.Atoms[i].ID = uuid.NewString()
		batch.Atoms[i].CreatedAt = now
	}
	upload := &evidence.SourceUpload{
		ID:                uuid.NewString(),
		CaseID:            req.CaseID,
		EvidenceType:      req.EvidenceType,
		SourceCategory:    category,
		RowsReceived:      len(req.Rows),
		DuplicatesSkipped: batch.DuplicatesInBatch,
		BlankRowsSkipped:  batch.BlankRows,
		UploadedAt:        now,
	}
	if err := s.store.CommitBatch(ctx, upload, batch.Atoms); err != nil {
		result = metrics.ResultError
		return CommitResult{}, err
	}

	out = CommitResult{
		UploadID:          upload.ID,
		AtomsCreated:      upload.AtomsCreated,
		DuplicatesSkipped: upload.DuplicatesSkipped,
		BlankRowsSkipped:  upload.BlankRowsSkipped,
	}
	s.logger.Info("evidence committed",
		"case_id", req.CaseID,
		"evidence_type", req.EvidenceType,
		"source_category", category,
		"atoms_created", out.AtomsCreated,
		"duplicates_skipped", out.DuplicatesSkipped,
	)
	if s.audit != nil {
		entry := audit.NewEntry(ctx, audit.ActionCommit, "source_upload", upload.ID, req.CaseID, out)
		if err := s.audit.Log(ctx, entry); err != nil {
			s.logger.Warn("audit log failed", "action", audit.ActionCommit, "error", err)
		}
	}
	return out, nil
}
