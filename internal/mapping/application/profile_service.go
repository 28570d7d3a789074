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
	"psur-evidence/internal/logging"
	mapping "psur-evidence/internal/mapping/domain"
	"psur-evidence/internal/observability/metrics"
)

// SaveProfileRequest is the input for saving a mapping profile. Verified is
// never decoded from a request body; only a session that passed Verify sets it.
type SaveProfileRequest struct {
	Name         string               `json:"name"`
	EvidenceType catalog.EvidenceType `json:"evidence_type"`
	Mappings     map[string]string    `json:"column_mappings"`
	Verified     bool                 `json:"-"`
}

// ProfileService stores and looks up mapping profiles.
type ProfileService struct {
	repo     mapping.ProfileRepository
	catalog  *catalog.Catalog
	tenantID string
	logger   *logging.Logger
	now      func() time.Time
}

// NewProfileService constructs a profile service. tenantID is used when the
// request context carries no tenant.
func NewProfileService(repo mapping.ProfileRepository, c *catalog.Catalog, tenantID string, logger *logging.Logger) (*ProfileService, error) {
	if repo == nil {
		return nil, errors.New("profile service: nil repository")
	}
	if c == nil {
		return nil, errors.New("profile service: nil catalog")
	}
	if tenantID == "" {
		return nil, errors.New("profile service: empty tenant id")
	}
	return &ProfileService{
		repo:     repo,
		catalog:  c,
		tenantID: tenantID,
		logger:   logging.OrNop(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ProfileService) tenant(ctx context.Context) string {
	return auth.TenantOrDefault(ctx, s.tenantID)
}

// FindMatch returns the best profile whose recorded columns all resolve
// against columns, or nil when none does.
func (s *ProfileService) FindMatch(ctx context.Context, t catalog.EvidenceType, columns []string) (*mapping.ProfileMatch, error) {
	if !s.catalog.Known(t) {
		return nil, apperr.New(apperr.KindValidation, "profile.match", mapping.ErrUnknownEvidenceType)
	}
	profiles, err := s.repo.ListByEvidenceType(ctx, s.tenant(ctx), t)
	if err != nil {
		return nil, err
	}
	return mapping.SelectProfile(profiles, columns), nil
}

// Save validates and persists a profile. A profile with the same column
// signature for the same evidence type is replaced in place.
func (s *ProfileService) Save(ctx context.Context, req SaveProfileRequest) (*mapping.Profile, error) {
	schema, ok := s.catalog.Schema(req.EvidenceType)
	if !ok {
		metrics.IncProfileSave(metrics.ResultError)
		return nil, apperr.New(apperr.KindValidation, "profile.save", mapping.ErrUnknownEvidenceType)
	}
	columns := make([]string, 0, len(req.Mappings))
	mappings := make(map[string]string, len(req.Mappings))
	for source, field := range req.Mappings {
		mappings[source] = strings.TrimSpace(field)
		columns = append(columns, source)
	}
	now := s.now()
	profile := &mapping.Profile{
		ID:             uuid.NewString(),
		TenantID:       s.tenant(ctx),
		Name:           strings.TrimSpace(req.Name),
		EvidenceType:   req.EvidenceType,
		ColumnMappings: mappings,
		Signature:      mapping.Signature(columns),
		Verified:       req.Verified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := profile.Validate(schema); err != nil {
		metrics.IncProfileSave(metrics.ResultError)
		return nil, apperr.New(apperr.KindValidation, "profile.save", err)
	}
	if err := s.repo.Save(ctx, profile); err != nil {
		metrics.IncProfileSave(metrics.ResultError)
		return nil, err
	}
	metrics.IncProfileSave(metrics.ResultSuccess)
	s.logger.Info("mapping profile saved",
		"profile_id", profile.ID,
		"evidence_type", profile.EvidenceType,
		"columns", len(profile.ColumnMappings),
		"verified", profile.Verified,
	)
	return profile, nil
}

// Apply resolves a profile onto the incoming columns.
func (s *ProfileService) Apply(profile mapping.Profile, columns []string) (mapping.Config, bool) {
	schema, ok := s.catalog.Schema(profile.EvidenceType)
	if !ok {
		return mapping.Config{}, false
	}
	return profile.Apply(columns, schema)
}

// MarkApplied increments the usage count of an auto-applied profile.
func (s *ProfileService) MarkApplied(ctx context.Context, id string) error {
	count, err := s.repo.IncrementUsage(ctx, id)
	if err != nil {
		return err
	}
	metrics.IncProfileApplied()
	s.logger.Debug("mapping profile applied", "profile_id", id, "usage_count", count)
	return nil
}

// List returns stored profiles for an evidence type.
func (s *ProfileService) List(ctx context.Context, t catalog.EvidenceType) ([]mapping.Profile, error) {
	if !s.catalog.Known(t) {
		return nil, apperr.New(apperr.KindValidation, "profile.list", mapping.ErrUnknownEvidenceType)
	}
	return s.repo.ListByEvidenceType(ctx, s.tenant(ctx), t)
}

// Get loads a profile by id.
func (s *ProfileService) Get(ctx context.Context, id string) (*mapping.Profile, error) {
	profile, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.TenantID != s.tenant(ctx) {
		return nil, apperr.NotFound("profile.get", "profile %q not found", id)
	}
	return profile, nil
}
