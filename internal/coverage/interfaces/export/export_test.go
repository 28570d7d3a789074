package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	coverageapp "psur-evidence/internal/coverage/application"
	coverage "psur-evidence/internal/coverage/domain"
	evidence "psur-evidence/internal/evidence/domain"
	ledger "psur-evidence/internal/ledger/domain"
	"psur-evidence/internal/catalog"
)

func sampleCase() evidence.Case {
	return evidence.Case{
		ID: "case-1", DeviceCode: "DEV-1", TemplateID: "pmsr_class_i",
		StartPeriod: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndPeriod:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func sampleJustification() ledger.Justification {
	reason := "Keine Rückrufe im Zeitraum"
	return ledger.Justification{
		ID: "na-1", CaseID: "case-1", EvidenceTypes: []catalog.EvidenceType{"recall_record"}, Reason: &reason,
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		RecordedAt:  time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuildCoverageXLSX(t *testing.T) {
	st := coverage.BuildState(catalog.Default(), map[catalog.EvidenceType]int{"complaint_record": 3}, []string{"complaints"}, nil)
	tpl, _ := catalog.Default().Template("pmsr_class_i")
	cc := coverageapp.CaseCoverage{
		Case:           sampleCase(),
		Report:         coverage.ReportFor(tpl.RequiredTypes, st),
		State:          st,
		Justifications: []ledger.Justification{sampleJustification()},
		GeneratedAt:    time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	data, err := BuildCoverageXLSX(cc)
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("summary", "B3")
	if err != nil || got != "case-1" {
		t.Fatalf("unexpected case cell %q %v", got, err)
	}
	got, _ = f.GetCellValue("evidence_types", "A3")
	if got != "complaint_record" {
		t.Fatalf("unexpected per-type row %q", got)
	}
	got, _ = f.GetCellValue("evidence_types", "D3")
	if got != "data, complaints" {
		t.Fatalf("unexpected reasons %q", got)
	}
	got, _ = f.GetCellValue("not_applicable", "B2")
	if got != "recall_record" {
		t.Fatalf("unexpected ledger row %q", got)
	}
}

func TestBuildJustificationPDF(t *testing.T) {
	c := sampleCase()
	data, err := BuildJustificationPDF(&c, []ledger.Justification{sampleJustification()})
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a pdf")
	}
}
