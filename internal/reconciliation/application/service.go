package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	evidenceapp "psur-evidence/internal/evidence/application"
	evidence "psur-evidence/internal/evidence/domain"
	"psur-evidence/internal/logging"
	mappingapp "psur-evidence/internal/mapping/application"
	mapping "psur-evidence/internal/mapping/domain"
	"psur-evidence/internal/observability/metrics"
	reconciliation "psur-evidence/internal/reconciliation/domain"
)

// AutoMapper suggests a mapping for unseen column layouts.
type AutoMapper interface {
	AutoMap(ctx context.Context, t catalog.EvidenceType, columns []string) (mapping.Config, error)
}

// Profiles looks up, applies and stores mapping profiles.
type Profiles interface {
	FindMatch(ctx context.Context, t catalog.EvidenceType, columns []string) (*mapping.ProfileMatch, error)
	Apply(profile mapping.Profile, columns []string) (mapping.Config, bool)
	MarkApplied(ctx context.Context, id string) error
	Save(ctx context.Context, req mappingapp.SaveProfileRequest) (*mapping.Profile, error)
}

// Committer persists verified rows as evidence atoms.
type Committer interface {
	ResolveCategory(t catalog.EvidenceType, category string) (string, error)
	Commit(ctx context.Context, req evidenceapp.CommitRequest) (evidenceapp.CommitResult, error)
}

// CaseLookup resolves cases visible to the caller.
type CaseLookup interface {
	Get(ctx context.Context, caseID string) (*evidence.Case, error)
}

// StartRequest opens a session for one parsed upload.
type StartRequest struct {
	CaseID         string               `json:"case_id"`
	EvidenceType   catalog.EvidenceType `json:"evidence_type"`
	SourceCategory string               `json:"source_category"`
	Columns        []string             `json:"columns"`
	Rows           []evidence.Row       `json:"rows"`
}

// Service drives reconciliation sessions from parse to commit.
type Service struct {
	store     reconciliation.Store
	catalog   *catalog.Catalog
	cases     CaseLookup
	automap   AutoMapper
	profiles  Profiles
	committer Committer
	tenantID  string
	logger    *logging.Logger
	now       func() time.Time
}

// Deps groups the collaborators of the session service.
type Deps struct {
	Store     reconciliation.Store
	Catalog   *catalog.Catalog
	Cases     CaseLookup
	AutoMap   AutoMapper
	Profiles  Profiles
	Committer Committer
	TenantID  string
	Logger    *logging.Logger
}

// NewService constructs the session service.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("session service: nil store")
	case d.Catalog == nil:
		return nil, errors.New("session service: nil catalog")
	case d.Cases == nil:
		return nil, errors.New("session service: nil case lookup")
	case d.AutoMap == nil:
		return nil, errors.New("session service: nil automap")
	case d.Profiles == nil:
		return nil, errors.New("session service: nil profiles")
	case d.Committer == nil:
		return nil, errors.New("session service: nil committer")
	case d.TenantID == "":
		return nil, errors.New("session service: empty tenant id")
	}
	return &Service{
		store:     d.Store,
		catalog:   d.Catalog,
		cases:     d.Cases,
		automap:   d.AutoMap,
		profiles:  d.Profiles,
		committer: d.Committer,
		tenantID:  d.TenantID,
		logger:    logging.OrNop(d.Logger),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) tenant(ctx context.Context) string {
	return auth.TenantOrDefault(ctx, s.tenantID)
}

// Start attaches the parsed upload, auto-applies a verified profile when one
// fully matches and otherwise installs an automap suggestion.
func (s *Service) Start(ctx context.Context, req StartRequest) (*reconciliation.Session, error) {
	if !s.catalog.Known(req.EvidenceType) {
		return nil, apperr.New(apperr.KindValidation, "session.start", mapping.ErrUnknownEvidenceType)
	}
	if _, err := s.cases.Get(ctx, req.CaseID); err != nil {
		return nil, err
	}
	category, err := s.committer.ResolveCategory(req.EvidenceType, req.SourceCategory)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := reconciliation.NewSession(uuid.NewString(), s.tenant(ctx), req.CaseID, req.EvidenceType, category, now)
	if err := session.AttachParse(req.Columns, req.Rows, now); err != nil {
		return nil, translate("session.start", err)
	}
	metrics.IncSessionTransition(string(session.State))

	if err := s.lookup(ctx, session); err != nil {
		return nil, err
	}
	metrics.IncSessionTransition(string(session.State))

	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("reconciliation session started",
		"session_id", session.ID,
		"case_id", session.CaseID,
		"evidence_type", session.EvidenceType,
		"state", session.State,
		"profile_id", session.ProfileID,
	)
	return session.Clone(), nil
}

func (s *Service) lookup(ctx context.Context, session *reconciliation.Session) error {
	match, err := s.profiles.FindMatch(ctx, session.EvidenceType, session.Columns)
	if err != nil {
		return err
	}
	start := time.Now()
	now := s.now()
	if match != nil && match.CanAutoApply {
		if cfg, ok := s.profiles.Apply(match.Profile, session.Columns); ok {
			if err := session.ApplyProfile(match.Profile.ID, cfg, now); err != nil {
				return translate("session.start", err)
			}
			if err := s.profiles.MarkApplied(ctx, match.Profile.ID); err != nil {
				s.logger.Warn("profile usage not recorded", "profile_id", match.Profile.ID, "error", err)
			}
			metrics.ObserveAutoMap(metrics.SourceProfile, time.Since(start), nil)
			return nil
		}
	}
	cfg, err := s.automap.AutoMap(ctx, session.EvidenceType, session.Columns)
	if err != nil {
		return err
	}
	return translate("session.start", session.ApplySuggestion(cfg, now))
}

// Get returns a session owned by the caller's tenant.
func (s *Service) Get(ctx context.Context, id string) (*reconciliation.Session, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate("session.get", err)
	}
	if session.TenantID != s.tenant(ctx) {
		return nil, apperr.NotFound("session.get", "session %q not found", id)
	}
	return session, nil
}

func (s *Service) update(ctx context.Context, op, id string, fn func(*reconciliation.Session) error) (*reconciliation.Session, error) {
	tenantID := s.tenant(ctx)
	var before reconciliation.State
	session, err := s.store.Update(ctx, id, func(session *reconciliation.Session) error {
		if session.TenantID != tenantID {
			return reconciliation.ErrSessionNotFound
		}
		before = session.State
		return fn(session)
	})
	if err != nil {
		return nil, translate(op, err)
	}
	if session.State != before {
		metrics.IncSessionTransition(string(session.State))
	}
	return session, nil
}

func (s *Service) schema(t catalog.EvidenceType) catalog.Schema {
	schema, _ := s.catalog.Schema(t)
	return schema
}

// SetMapping maps source onto target, replacing any previous target of source.
func (s *Service) SetMapping(ctx context.Context, id, source, target string) (*reconciliation.Session, error) {
	source = strings.TrimSpace(source)
	target = strings.TrimSpace(target)
	return s.update(ctx, "session.set_mapping", id, func(session *reconciliation.Session) error {
		return session.SetMapping(s.schema(session.EvidenceType), source, target, s.now())
	})
}

// RemoveMapping unmaps source.
func (s *Service) RemoveMapping(ctx context.Context, id, source string) (*reconciliation.Session, error) {
	return s.update(ctx, "session.remove_mapping", id, func(session *reconciliation.Session) error {
		return session.RemoveMapping(s.schema(session.EvidenceType), source, s.now())
	})
}

// Verify confirms the current mapping.
func (s *Service) Verify(ctx context.Context, id string) (*reconciliation.Session, error) {
	return s.update(ctx, "session.verify", id, func(session *reconciliation.Session) error {
		return session.Verify(s.schema(session.EvidenceType), s.now())
	})
}

// SaveProfile stores the verified mapping as a reusable profile.
func (s *Service) SaveProfile(ctx context.Context, id, name string) (*mapping.Profile, error) {
	var saved *mapping.Profile
	_, err := s.update(ctx, "session.save_profile", id, func(session *reconciliation.Session) error {
		if err := session.CanSaveProfile(); err != nil {
			return err
		}
		profile, err := s.profiles.Save(ctx, mappingapp.SaveProfileRequest{
			Name:         name,
			EvidenceType: session.EvidenceType,
			Mappings:     session.Config.AsMap(),
			Verified:     true,
		})
		if err != nil {
			return err
		}
		session.ProfileID = profile.ID
		saved = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Commit creates atoms from the session rows. Sessions that are not verified
// are rejected and nothing is persisted.
func (s *Service) Commit(ctx context.Context, id string) (*reconciliation.Session, error) {
	return s.update(ctx, "session.commit", id, func(session *reconciliation.Session) error {
		if err := session.CanCommit(); err != nil {
			return err
		}
		res, err := s.committer.Commit(ctx, evidenceapp.CommitRequest{
			CaseID:         session.CaseID,
			EvidenceType:   session.EvidenceType,
			SourceCategory: session.SourceCategory,
			Config:         session.Config,
			Rows:           session.Rows,
		})
		if err != nil {
			return err
		}
		return session.MarkCommitted(reconciliation.CommitOutcome{
			UploadID:          res.UploadID,
			AtomsCreated:      res.AtomsCreated,
			DuplicatesSkipped: res.DuplicatesSkipped,
			BlankRowsSkipped:  res.BlankRowsSkipped,
		}, s.now())
	})
}

// Discard drops a session. Nothing it held is persisted.
func (s *Service) Discard(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return translate("session.discard", err)
	}
	s.logger.Debug("reconciliation session discarded", "session_id", id)
	return nil
}

// translate maps session domain errors onto the engine error kinds. Errors
// that already carry a kind pass through.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, reconciliation.ErrSessionNotFound):
		return apperr.New(apperr.KindNotFound, op, err)
	case errors.Is(err, reconciliation.ErrIllegalTransition), errors.Is(err, reconciliation.ErrNotVerified):
		return apperr.New(apperr.KindConflict, op, err)
	case errors.Is(err, reconciliation.ErrNoColumns),
		errors.Is(err, reconciliation.ErrUnknownSourceColumn),
		errors.Is(err, reconciliation.ErrUnknownTargetField),
		errors.Is(err, reconciliation.ErrTargetClaimed),
		errors.Is(err, reconciliation.ErrColumnNotMapped),
		errors.Is(err, reconciliation.ErrMissingRequired):
		return apperr.New(apperr.KindValidation, op, err)
	}
	return err
}
