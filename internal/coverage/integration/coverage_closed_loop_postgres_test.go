package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"psur-evidence/internal/audit"
	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	coverageapp "psur-evidence/internal/coverage/application"
	evidenceapp "psur-evidence/internal/evidence/application"
	evidence "psur-evidence/internal/evidence/domain"
	evidencerepo "psur-evidence/internal/evidence/infrastructure/postgres"
	ledgerapp "psur-evidence/internal/ledger/application"
	ledgerrepo "psur-evidence/internal/ledger/infrastructure/postgres"
	mapping "psur-evidence/internal/mapping/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestCoverageClosedLoop_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "psur_cases") ||
		!tableExists(db, "evidence_atoms") ||
		!tableExists(db, "source_uploads") ||
		!tableExists(db, "na_justifications") ||
		!tableExists(db, "audit_logs") {
		t.Skip("missing tables; run migrations")
	}

	ctx := auth.WithIdentity(context.Background(), "tenant-it-cov", auth.RoleOperator, "qa-it")
	caseID := "case-it-coverage"

	_, _ = db.ExecContext(ctx, "DELETE FROM evidence_atoms WHERE case_id = $1", caseID)
	_, _ = db.ExecContext(ctx, "DELETE FROM source_uploads WHERE case_id = $1", caseID)
	_, _ = db.ExecContext(ctx, "DELETE FROM na_justifications WHERE case_id = $1", caseID)
	_, _ = db.ExecContext(ctx, "DELETE FROM audit_logs WHERE case_id = $1", caseID)
	_, _ = db.ExecContext(ctx, "DELETE FROM psur_cases WHERE id = $1", caseID)

	if _, err := db.ExecContext(ctx, `
INSERT INTO psur_cases (id, tenant_id, device_code, template_id, start_period, end_period)
VALUES ($1, $2, $3, $4, $5, $6)`,
		caseID, "tenant-it-cov", "DEV-IT", "pmsr_class_i",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("insert case: %v", err)
	}

	c := catalog.Default()
	cases, err := evidenceapp.NewCaseService(evidencerepo.NewCaseRepository(db), c)
	if err != nil {
		t.Fatalf("case service: %v", err)
	}
	atoms := evidencerepo.NewAtomStore(db)
	auditRepo := audit.NewRepository(db)
	committer, err := evidenceapp.NewCommitService(atoms, cases, c, auditRepo, nil)
	if err != nil {
		t.Fatalf("commit service: %v", err)
	}
	justifications := ledgerrepo.NewRepository(db)
	ledgerService, err := ledgerapp.NewService(justifications, cases, c, auditRepo, nil)
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	coverage, err := coverageapp.NewService(cases, atoms, justifications, c, nil)
	if err != nil {
		t.Fatalf("coverage service: %v", err)
	}

	columns := []string{"CAPA No", "Opened", "Description", "Status"}
	cfg := mapping.NewMatcher(c).Match(columns, "capa_record")
	rows := []evidence.Row{
		{"CAPA No": "CAPA-1", "Opened": "2024-02-01", "Description": "seal", "Status": "open"},
		{"CAPA No": "CAPA-1", "Opened": "2024-02-01", "Description": "seal", "Status": "open"},
		{"CAPA No": "", "Opened": "", "Description": "", "Status": ""},
	}
	result, err := committer.Commit(ctx, evidenceapp.CommitRequest{
		CaseID:       caseID,
		EvidenceType: "capa_record",
		Config:       cfg,
		Rows:         rows,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.AtomsCreated != 1 || result.DuplicatesSkipped != 1 || result.BlankRowsSkipped != 1 {
		t.Fatalf("unexpected commit result %+v", result)
	}

	if _, err := ledgerService.MarkNotApplicable(ctx, ledgerapp.MarkRequest{
		CaseID:        caseID,
		PeriodStart:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		EvidenceTypes: []catalog.EvidenceType{"fsca_record", "serious_incident_record"},
		Reason:        "no field actions or incidents in period",
	}); err != nil {
		t.Fatalf("mark not applicable: %v", err)
	}

	report, err := coverage.CaseCoverage(ctx, caseID)
	if err != nil {
		t.Fatalf("case coverage: %v", err)
	}
	if report.Report.CoveragePercent != 60 || len(report.Report.MissingTypes) != 2 {
		t.Fatalf("unexpected coverage %+v", report.Report)
	}
	if len(report.Uploads) != 1 || len(report.Justifications) != 1 {
		t.Fatalf("expected one upload and one justification, got %d/%d", len(report.Uploads), len(report.Justifications))
	}

	entries, err := auditRepo.List(ctx, "tenant-it-cov", caseID, 10)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected commit and not-applicable audit entries, got %d", len(entries))
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	return err == nil && exists
}
