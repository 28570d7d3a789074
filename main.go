package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	apihttp "psur-evidence/internal/api/http"
	"psur-evidence/internal/audit"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	"psur-evidence/internal/config"
	coverageapp "psur-evidence/internal/coverage/application"
	evidenceapp "psur-evidence/internal/evidence/application"
	evidence "psur-evidence/internal/evidence/domain"
	evidencemem "psur-evidence/internal/evidence/infrastructure/memory"
	evidencepg "psur-evidence/internal/evidence/infrastructure/postgres"
	ledgerapp "psur-evidence/internal/ledger/application"
	ledger "psur-evidence/internal/ledger/domain"
	ledgermem "psur-evidence/internal/ledger/infrastructure/memory"
	ledgerpg "psur-evidence/internal/ledger/infrastructure/postgres"
	"psur-evidence/internal/logging"
	"psur-evidence/internal/mapping/adapters/remote"
	mappingapp "psur-evidence/internal/mapping/application"
	mapping "psur-evidence/internal/mapping/domain"
	mappingmem "psur-evidence/internal/mapping/infrastructure/memory"
	mappingpg "psur-evidence/internal/mapping/infrastructure/postgres"
	"psur-evidence/internal/observability/metrics"
	reconapp "psur-evidence/internal/reconciliation/application"
	reconmem "psur-evidence/internal/reconciliation/infrastructure/memory"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(issueToken(os.Args[2:]))
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("catalog load error", "path", cfg.CatalogPath, "error", err)
	}

	repos, db, err := openRepositories(cfg, logger)
	if err != nil {
		logger.Fatal("repository setup error", "error", err)
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	cases, err := evidenceapp.NewCaseService(repos.cases, cat)
	if err != nil {
		logger.Fatal("case service error", "error", err)
	}
	committer, err := evidenceapp.NewCommitService(repos.atoms, cases, cat, repos.audit, logger)
	if err != nil {
		logger.Fatal("commit service error", "error", err)
	}
	atomQuery, err := evidenceapp.NewAtomQuery(repos.atoms, cases, cat)
	if err != nil {
		logger.Fatal("atom query error", "error", err)
	}

	automapOpts := []mappingapp.AutoMapOption{mappingapp.WithAutoMapLogger(logger)}
	if cfg.AutoMap.BaseURL != "" {
		client, err := remote.NewClient(cfg.AutoMap.BaseURL, cfg.AutoMap.Token, remote.WithTimeout(cfg.AutoMap.Timeout))
		if err != nil {
			logger.Fatal("automap client error", "error", err)
		}
		automapOpts = append(automapOpts, mappingapp.WithRemoteMapper(client))
		logger.Info("remote automap enabled", "base_url", cfg.AutoMap.BaseURL)
	}
	automap, err := mappingapp.NewAutoMapService(cat, automapOpts...)
	if err != nil {
		logger.Fatal("automap service error", "error", err)
	}
	profiles, err := mappingapp.NewProfileService(repos.profiles, cat, cfg.DefaultTenantID, logger)
	if err != nil {
		logger.Fatal("profile service error", "error", err)
	}

	sessions, err := reconapp.NewService(reconapp.Deps{
		Store:     reconmem.NewSessionStore(cfg.SessionTTL),
		Catalog:   cat,
		Cases:     cases,
		AutoMap:   automap,
		Profiles:  profiles,
		Committer: committer,
		TenantID:  cfg.DefaultTenantID,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("session service error", "error", err)
	}
	ledgerService, err := ledgerapp.NewService(repos.ledger, cases, cat, repos.audit, logger)
	if err != nil {
		logger.Fatal("ledger service error", "error", err)
	}
	coverage, err := coverageapp.NewService(cases, repos.atoms, repos.ledger, cat, logger)
	if err != nil {
		logger.Fatal("coverage service error", "error", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy).WithLogger(logger)
	if cfg.JWTSecret == "" && cfg.Production() {
		logger.Fatal("AUTH_JWT_SECRET is required in production")
	}
	if cfg.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, authentication disabled")
	}

	handler, err := apihttp.NewHandler(apihttp.Deps{
		Catalog:     cat,
		AutoMap:     automap,
		Profiles:    profiles,
		Sessions:    sessions,
		Ledger:      ledgerService,
		Coverage:    coverage,
		Atoms:       atomQuery,
		Cases:       auth.NewCaseChecker(cases),
		Audit:       repos.audit,
		AuditReader: repos.audit,
		Auth:        authMiddleware,
		Logger:      logger,
		MaxBody:     int64(cfg.MaxBodyBytes),
	})
	if err != nil {
		logger.Fatal("api handler error", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr, "catalog_version", cat.Version(), "persistent", db != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}

type auditStore interface {
	audit.Logger
	audit.Reader
}

type repositories struct {
	cases    evidence.CaseRepository
	atoms    evidence.AtomStore
	profiles mapping.ProfileRepository
	ledger   ledger.Repository
	audit    auditStore
}

// openRepositories uses Postgres when a database URL is configured and
// in-memory stores otherwise.
func openRepositories(cfg config.Config, logger *logging.Logger) (repositories, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		var seed []evidence.Case
		if cfg.CaseSeedPath != "" {
			loaded, err := evidencemem.LoadCaseSeed(cfg.CaseSeedPath)
			if err != nil {
				return repositories{}, nil, err
			}
			seed = loaded
		}
		logger.Warn("DATABASE_URL not set, using in-memory repositories", "seeded_cases", len(seed))
		return repositories{
			cases:    evidencemem.NewCaseRepository(seed...),
			atoms:    evidencemem.NewAtomStore(),
			profiles: mappingmem.NewProfileRepository(),
			ledger:   ledgermem.NewRepository(),
			audit:    audit.NewMemoryLogger(),
		}, nil, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return repositories{}, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return repositories{}, nil, err
	}
	return repositories{
		cases:    evidencepg.NewCaseRepository(db),
		atoms:    evidencepg.NewAtomStore(db),
		profiles: mappingpg.NewProfileRepository(db),
		ledger:   ledgerpg.NewRepository(db),
		audit:    audit.NewRepository(db),
	}, db, nil
}

// issueToken prints a signed bearer token for local testing.
func issueToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("AUTH_JWT_SECRET"), "HS256 signing secret")
	tenant := fs.String("tenant", "tenant-demo", "tenant id claim")
	role := fs.String("role", string(auth.RoleOperator), "viewer, operator or admin")
	subject := fs.String("sub", "local-user", "subject claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	normalized, ok := auth.NormalizeRole(*role)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid role %q\n", *role)
		return 2
	}
	token, err := auth.IssueToken([]byte(*secret), *tenant, normalized, *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
