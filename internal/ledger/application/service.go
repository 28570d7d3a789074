package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/audit"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	evidence "psur-evidence/internal/evidence/domain"
	ledger "psur-evidence/internal/ledger/domain"
	"psur-evidence/internal/logging"
	"psur-evidence/internal/observability/metrics"
)

// CaseReader loads cases visible to the caller.
type CaseReader interface {
	Get(ctx context.Context, caseID string) (*evidence.Case, error)
}

// MarkRequest is the input for recording a not-applicable justification.
type MarkRequest struct {
	CaseID        string                 `json:"case_id"`
	DeviceCode    string                 `json:"device_code"`
	PeriodStart   time.Time              `json:"period_start"`
	PeriodEnd     time.Time              `json:"period_end"`
	EvidenceTypes []catalog.EvidenceType `json:"evidence_types"`
	Reason        string                 `json:"reason"`
}

// Service records and lists not-applicable justifications.
type Service struct {
	repo    ledger.Repository
	cases   CaseReader
	catalog *catalog.Catalog
	audit   audit.Logger
	logger  *logging.Logger
	now     func() time.Time
}

// NewService constructs the ledger service. auditLogger may be nil.
func NewService(repo ledger.Repository, cases CaseReader, c *catalog.Catalog, auditLogger audit.Logger, logger *logging.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("ledger service: nil repository")
	}
	if cases == nil {
		return nil, errors.New("ledger service: nil case reader")
	}
	if c == nil {
		return nil, errors.New("ledger service: nil catalog")
	}
	return &Service{
		repo:    repo,
		cases:   cases,
		catalog: c,
		audit:   auditLogger,
		logger:  logging.OrNop(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// MarkNotApplicable appends a justification. A blank device code defaults to
// the case's device.
func (s *Service) MarkNotApplicable(ctx context.Context, req MarkRequest) (ledger.Justification, error) {
	j, err := s.mark(ctx, req)
	if err != nil {
		metrics.IncNAJustification(metrics.ResultError)
		return ledger.Justification{}, err
	}
	metrics.IncNAJustification(metrics.ResultSuccess)
	return j, nil
}

func (s *Service) mark(ctx context.Context, req MarkRequest) (ledger.Justification, error) {
	j, err := ledger.NewJustification(s.catalog, uuid.NewString(), req.CaseID, req.DeviceCode, req.EvidenceTypes,
		req.Reason, req.PeriodStart, req.PeriodEnd, s.now(), auth.SubjectFromContext(ctx))
	if err != nil {
		return ledger.Justification{}, apperr.New(apperr.KindValidation, "ledger.mark", err)
	}
	c, err := s.cases.Get(ctx, req.CaseID)
	if err != nil {
		return ledger.Justification{}, err
	}
	if j.DeviceCode == "" {
		j.DeviceCode = c.DeviceCode
	}
	if err := s.repo.Append(ctx, j); err != nil {
		return ledger.Justification{}, err
	}

	s.logger.Info("evidence marked not applicable",
		"case_id", j.CaseID,
		"evidence_types", j.EvidenceTypes,
		"justification_id", j.ID,
	)
	if s.audit != nil {
		entry := audit.NewEntry(ctx, audit.ActionNotApplicable, "na_justification", j.ID, j.CaseID, j)
		if err := s.audit.Log(ctx, entry); err != nil {
			s.logger.Warn("audit log failed", "action", audit.ActionNotApplicable, "error", err)
		}
	}
	return j, nil
}

// List returns a case's justifications, oldest first.
func (s *Service) List(ctx context.Context, caseID string) ([]ledger.Justification, error) {
	if _, err := s.cases.Get(ctx, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListByCase(ctx, caseID)
}
