package apihttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"psur-evidence/internal/audit"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	coverageapp "psur-evidence/internal/coverage/application"
	evidenceapp "psur-evidence/internal/evidence/application"
	ledgerapp "psur-evidence/internal/ledger/application"
	"psur-evidence/internal/logging"
	mappingapp "psur-evidence/internal/mapping/application"
	reconapp "psur-evidence/internal/reconciliation/application"
)

const (
	timeLayout          = time.RFC3339
	dateLayout          = "2006-01-02"
	defaultMaxBodyBytes = 32 << 20
)

// Deps are the services exposed over HTTP.
type Deps struct {
	Catalog     *catalog.Catalog
	AutoMap     *mappingapp.AutoMapService
	Profiles    *mappingapp.ProfileService
	Sessions    *reconapp.Service
	Ledger      *ledgerapp.Service
	Coverage    *coverageapp.Service
	Atoms       *evidenceapp.AtomQuery
	Cases       auth.CaseTenantChecker
	Audit       audit.Logger
	AuditReader audit.Reader
	Auth        *auth.Middleware
	Logger      *logging.Logger
	MaxBody     int64
}

// Handler serves the evidence engine API.
type Handler struct {
	catalog     *catalog.Catalog
	automap     *mappingapp.AutoMapService
	profiles    *mappingapp.ProfileService
	sessions    *reconapp.Service
	ledger      *ledgerapp.Service
	coverage    *coverageapp.Service
	atoms       *evidenceapp.AtomQuery
	cases       auth.CaseTenantChecker
	audit       audit.Logger
	auditReader audit.Reader
	authMW      *auth.Middleware
	logger      *logging.Logger
	maxBody     int64
}

// NewHandler constructs the API handler.
func NewHandler(d Deps) (*Handler, error) {
	switch {
	case d.Catalog == nil:
		return nil, errors.New("api handler: nil catalog")
	case d.AutoMap == nil:
		return nil, errors.New("api handler: nil automap service")
	case d.Profiles == nil:
		return nil, errors.New("api handler: nil profile service")
	case d.Sessions == nil:
		return nil, errors.New("api handler: nil session service")
	case d.Ledger == nil:
		return nil, errors.New("api handler: nil ledger service")
	case d.Coverage == nil:
		return nil, errors.New("api handler: nil coverage service")
	case d.Atoms == nil:
		return nil, errors.New("api handler: nil atom query")
	}
	maxBody := d.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		catalog:     d.Catalog,
		automap:     d.AutoMap,
		profiles:    d.Profiles,
		sessions:    d.Sessions,
		ledger:      d.Ledger,
		coverage:    d.Coverage,
		atoms:       d.Atoms,
		cases:       d.Cases,
		audit:       d.Audit,
		auditReader: d.AuditReader,
		authMW:      d.Auth,
		logger:      logging.OrNop(d.Logger),
		maxBody:     maxBody,
	}, nil
}

// Router builds the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(AccessLog(h.logger))
	r.Use(audit.Middleware)
	if h.authMW != nil {
		r.Use(h.authMW.Wrap)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/catalog", h.getCatalog)
		v1.Post("/mappings/auto", h.autoMap)

		v1.Route("/profiles", func(p chi.Router) {
			p.Get("/", h.listProfiles)
			p.Post("/", h.saveProfile)
			p.Post("/match", h.matchProfile)
			p.Get("/{profileID}", h.getProfile)
		})

		v1.Route("/sessions", func(s chi.Router) {
			s.Post("/", h.startSession)
			s.Get("/{sessionID}", h.getSession)
			s.Delete("/{sessionID}", h.discardSession)
			s.Put("/{sessionID}/mappings/{source}", h.setSessionMapping)
			s.Delete("/{sessionID}/mappings/{source}", h.removeSessionMapping)
			s.Post("/{sessionID}/verify", h.verifySession)
			s.Post("/{sessionID}/profile", h.saveSessionProfile)
			s.Post("/{sessionID}/commit", h.commitSession)
		})

		v1.Route("/cases/{caseID}", func(c chi.Router) {
			c.Use(h.caseScope)
			c.Get("/atom-counts", h.atomCounts)
			c.Get("/coverage", h.caseCoverage)
			c.Get("/coverage.xlsx", h.coverageXLSX)
			c.Get("/not-applicable", h.listNotApplicable)
			c.Post("/not-applicable", h.markNotApplicable)
			c.Get("/not-applicable.pdf", h.notApplicablePDF)
			c.Get("/atoms.csv", h.atomsCSV)
		})

		v1.Get("/admin/audit", h.listAudit)
	})
	return r
}

// caseScope rejects requests for cases owned by another tenant.
func (h *Handler) caseScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := auth.TenantIDFromContext(r.Context())
		if h.cases != nil && tenantID != "" {
			if err := h.cases.EnsureCaseTenant(r.Context(), tenantID, chi.URLParam(r, "caseID")); err != nil {
				h.writeError(w, r, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
