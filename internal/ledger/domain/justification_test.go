package ledger

import (
	"errors"
	"testing"
	"time"

	"psur-evidence/internal/catalog"
)

var (
	periodStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	recordedAt  = time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
)

func TestNewJustification(t *testing.T) {
	j, err := NewJustification(catalog.Default(), "na-1", "case-1", " DEV-1 ",
		[]catalog.EvidenceType{"recall_record", "fsca_record", "recall_record"},
		"  no recalls this period ", periodStart, periodEnd, recordedAt, "qa-1")
	if err != nil {
		t.Fatalf("new justification: %v", err)
	}
	if len(j.EvidenceTypes) != 2 || j.EvidenceTypes[0] != "recall_record" || j.EvidenceTypes[1] != "fsca_record" {
		t.Fatalf("types not collapsed in order: %v", j.EvidenceTypes)
	}
	if j.ReasonText() != "no recalls this period" || j.DeviceCode != "DEV-1" {
		t.Fatalf("unexpected entry %+v", j)
	}
	if !j.Covers("fsca_record") || j.Covers("capa_record") {
		t.Fatalf("covers mismatch")
	}

	blank, err := NewJustification(catalog.Default(), "na-2", "case-1", "", []catalog.EvidenceType{"capa_record"}, "   ", periodStart, periodEnd, recordedAt, "")
	if err != nil {
		t.Fatalf("blank reason should be allowed: %v", err)
	}
	if blank.Reason != nil {
		t.Fatalf("blank reason should be stored as nil")
	}
}

func TestNewJustificationRejects(t *testing.T) {
	cases := []struct {
		name   string
		caseID string
		types  []catalog.EvidenceType
		start  time.Time
		end    time.Time
		want   error
	}{
		{"empty types", "case-1", nil, periodStart, periodEnd, ErrNoEvidenceTypes},
		{"unknown type", "case-1", []catalog.EvidenceType{"capa_record", "unicorns"}, periodStart, periodEnd, ErrUnknownEvidenceType},
		{"blank case", " ", []catalog.EvidenceType{"capa_record"}, periodStart, periodEnd, ErrEmptyCaseID},
		{"zero period", "case-1", []catalog.EvidenceType{"capa_record"}, time.Time{}, periodEnd, ErrInvalidPeriod},
		{"inverted period", "case-1", []catalog.EvidenceType{"capa_record"}, periodEnd, periodStart, ErrInvalidPeriod},
	}
	for _, tc := range cases {
		_, err := NewJustification(catalog.Default(), "id", tc.caseID, "", tc.types, "", tc.start, tc.end, recordedAt, "")
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
