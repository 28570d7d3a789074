package application

import (
	"context"
	"errors"
	"time"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/catalog"
	"psur-evidence/internal/logging"
	mapping "psur-evidence/internal/mapping/domain"
	"psur-evidence/internal/observability/metrics"
)

// RemoteMapper is a best-effort external mapping service.
type RemoteMapper interface {
	Map(ctx context.Context, schema catalog.Schema, aliases map[string][]string, columns []string) ([]mapping.ColumnMapping, error)
}

// AutoMapService proposes column mappings, consulting the remote mapper first
// when one is configured and falling back to the local matcher.
type AutoMapService struct {
	catalog *catalog.Catalog
	matcher *mapping.Matcher
	remote  RemoteMapper
	logger  *logging.Logger
}

// AutoMapOption configures the service.
type AutoMapOption func(*AutoMapService)

// WithRemoteMapper enables the remote mapping service.
func WithRemoteMapper(remote RemoteMapper) AutoMapOption {
	return func(s *AutoMapService) {
		s.remote = remote
	}
}

// WithAutoMapLogger sets the logger.
func WithAutoMapLogger(logger *logging.Logger) AutoMapOption {
	return func(s *AutoMapService) {
		s.logger = logging.OrNop(logger)
	}
}

// NewAutoMapService constructs the service.
func NewAutoMapService(c *catalog.Catalog, opts ...AutoMapOption) (*AutoMapService, error) {
	if c == nil {
		return nil, errors.New("automap service: nil catalog")
	}
	s := &AutoMapService{
		catalog: c,
		matcher: mapping.NewMatcher(c),
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AutoMap maps source columns onto the schema of t. Remote failures are never
// returned; the only error is an unknown evidence type.
func (s *AutoMapService) AutoMap(ctx context.Context, t catalog.EvidenceType, columns []string) (mapping.Config, error) {
	schema, ok := s.catalog.Schema(t)
	if !ok {
		return mapping.Config{}, apperr.New(apperr.KindValidation, "automap", mapping.ErrUnknownEvidenceType)
	}
	start := time.Now()

	if s.remote != nil {
		cfg, err := s.remoteMap(ctx, schema, columns)
		if err == nil {
			metrics.ObserveAutoMap(metrics.SourceRemote, time.Since(start), confidences(cfg))
			return cfg, nil
		}
		reason := "invalid_result"
		if apperr.KindOf(err) == apperr.KindUpstreamUnavailable {
			reason = "unavailable"
		}
		metrics.IncAutoMapFallback(reason)
		s.logger.Warn("remote automap failed, using local matcher",
			"evidence_type", t,
			"reason", reason,
			"error", err,
		)
	}

	cfg := s.matcher.Match(columns, t)
	metrics.ObserveAutoMap(metrics.SourceLocal, time.Since(start), confidences(cfg))
	return cfg, nil
}

func (s *AutoMapService) remoteMap(ctx context.Context, schema catalog.Schema, columns []string) (mapping.Config, error) {
	aliases := make(map[string][]string, len(schema.Fields))
	for _, f := range schema.Fields {
		if list := s.catalog.Aliases(f.Name); len(list) > 0 {
			aliases[f.Name] = list
		}
	}
	mappings, err := s.remote.Map(ctx, schema, aliases, columns)
	if err != nil {
		return mapping.Config{}, apperr.Upstream("automap.remote", err)
	}
	for i := range mappings {
		mappings[i].AutoMapped = true
	}
	cfg := mapping.Complete(schema.Type, mappings, columns, schema)
	if err := cfg.Validate(schema, columns); err != nil {
		return mapping.Config{}, err
	}
	return cfg, nil
}

func confidences(cfg mapping.Config) []float64 {
	out := make([]float64, 0, len(cfg.Mappings))
	for _, m := range cfg.Mappings {
		out = append(out, m.Confidence)
	}
	return out
}
