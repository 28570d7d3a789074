package application

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"psur-evidence/internal/catalog"
	coverage "psur-evidence/internal/coverage/domain"
	evidence "psur-evidence/internal/evidence/domain"
	ledger "psur-evidence/internal/ledger/domain"
	"psur-evidence/internal/logging"
	"psur-evidence/internal/observability/metrics"
)

// CaseReader loads cases and their required evidence types.
type CaseReader interface {
	Get(ctx context.Context, caseID string) (*evidence.Case, error)
	RequiredTypes(c *evidence.Case) ([]catalog.EvidenceType, error)
}

// AtomCounts is the getAtomCounts response.
type AtomCounts struct {
	CaseID   string                       `json:"case_id"`
	Totals   int                          `json:"totals"`
	ByType   map[catalog.EvidenceType]int `json:"by_type"`
	Coverage CoverageView                 `json:"coverage"`
}

// CoverageView is the coverage part of AtomCounts.
type CoverageView struct {
	CoveredSources   []string                          `json:"covered_sources"`
	CoveredTypes     []catalog.EvidenceType            `json:"covered_types"`
	CoverageBySource map[string][]catalog.EvidenceType `json:"coverage_by_source"`
	CoveredByType    map[catalog.EvidenceType][]string `json:"covered_by_type"`
}

// CaseCoverage is a case's report against its template.
type CaseCoverage struct {
	Case           evidence.Case           `json:"case"`
	Report         coverage.Report         `json:"report"`
	State          coverage.State          `json:"state"`
	Justifications []ledger.Justification  `json:"justifications"`
	Uploads        []evidence.SourceUpload `json:"uploads"`
	GeneratedAt    time.Time               `json:"generated_at"`
}

// Service computes coverage from the current repository contents.
type Service struct {
	cases   CaseReader
	atoms   evidence.AtomStore
	ledger  ledger.Repository
	catalog *catalog.Catalog
	logger  *logging.Logger
}

// NewService constructs a coverage service.
func NewService(cases CaseReader, atoms evidence.AtomStore, justifications ledger.Repository, c *catalog.Catalog, logger *logging.Logger) (*Service, error) {
	if cases == nil {
		return nil, errors.New("coverage service: nil case reader")
	}
	if atoms == nil {
		return nil, errors.New("coverage service: nil atom store")
	}
	if justifications == nil {
		return nil, errors.New("coverage service: nil ledger")
	}
	if c == nil {
		return nil, errors.New("coverage service: nil catalog")
	}
	return &Service{cases: cases, atoms: atoms, ledger: justifications, catalog: c, logger: logging.OrNop(logger)}, nil
}

type snapshot struct {
	counts         map[catalog.EvidenceType]int
	uploads        []evidence.SourceUpload
	justifications []ledger.Justification
}

// load reads counts, uploads and justifications concurrently.
func (s *Service) load(ctx context.Context, caseID string) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.atoms.CountByType(gctx, caseID)
		snap.counts = counts
		return err
	})
	g.Go(func() error {
		uploads, err := s.atoms.ListUploads(gctx, caseID)
		snap.uploads = uploads
		return err
	})
	g.Go(func() error {
		list, err := s.ledger.ListByCase(gctx, caseID)
		snap.justifications = list
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (s *Service) state(snap snapshot) coverage.State {
	categories := make([]string, 0, len(snap.uploads))
	for _, u := range snap.uploads {
		if !u.HasContent() {
			continue
		}
		categories = append(categories, u.SourceCategory)
	}
	var naTypes []catalog.EvidenceType
	for _, j := range snap.justifications {
		naTypes = append(naTypes, j.EvidenceTypes...)
	}
	return coverage.BuildState(s.catalog, snap.counts, categories, naTypes)
}

// AtomCounts returns atom totals and the coverage state of a case.
func (s *Service) AtomCounts(ctx context.Context, caseID string) (AtomCounts, error) {
	if _, err := s.cases.Get(ctx, caseID); err != nil {
		return AtomCounts{}, err
	}
	snap, err := s.load(ctx, caseID)
	if err != nil {
		return AtomCounts{}, err
	}
	st := s.state(snap)
	return AtomCounts{
		CaseID: caseID,
		Totals: st.Total(),
		ByType: st.ByType,
		Coverage: CoverageView{
			CoveredSources:   st.CoveredSources,
			CoveredTypes:     st.CoveredTypes,
			CoverageBySource: st.CoverageBySource,
			CoveredByType:    st.CoveredByType,
		},
	}, nil
}

// CaseCoverage computes the report of a case against its template.
func (s *Service) CaseCoverage(ctx context.Context, caseID string) (CaseCoverage, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	var percent float64
	defer func() {
		metrics.ObserveCoverage(result, time.Since(start), percent)
	}()

	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		result = metrics.ResultError
		return CaseCoverage{}, err
	}
	required, err := s.cases.RequiredTypes(c)
	if err != nil {
		result = metrics.ResultError
		return CaseCoverage{}, err
	}
	snap, err := s.load(ctx, caseID)
	if err != nil {
		result = metrics.ResultError
		return CaseCoverage{}, err
	}
	st := s.state(snap)
	report := coverage.ReportFor(required, st)
	percent = report.CoveragePercent

	s.logger.Debug("coverage computed",
		"case_id", caseID,
		"coverage_percent", report.CoveragePercent,
		"missing", len(report.MissingTypes),
	)
	return CaseCoverage{
		Case:           *c,
		Report:         report,
		State:          st,
		Justifications: snap.justifications,
		Uploads:        snap.uploads,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

// Justifications returns a case and its not-applicable entries for export.
func (s *Service) Justifications(ctx context.Context, caseID string) (*evidence.Case, []ledger.Justification, error) {
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.ledger.ListByCase(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return c, list, nil
}
