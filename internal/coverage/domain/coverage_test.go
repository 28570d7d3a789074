package coverage

import (
	"reflect"
	"testing"

	"psur-evidence/internal/catalog"
)

func TestComputeMissingAndPercent(t *testing.T) {
	report := Compute(
		[]catalog.EvidenceType{"A", "B", "C"},
		map[catalog.EvidenceType]int{"A": 5},
		[]catalog.EvidenceType{"B"},
	)
	if !reflect.DeepEqual(report.MissingTypes, []catalog.EvidenceType{"C"}) {
		t.Fatalf("unexpected missing %v", report.MissingTypes)
	}
	if report.CoveragePercent != 66.67 {
		t.Fatalf("expected 66.67, got %v", report.CoveragePercent)
	}
	if report.Ready {
		t.Fatalf("report with missing types must not be ready")
	}

	// A not-applicable justification for C joins the source-covered set.
	report = Compute(
		[]catalog.EvidenceType{"A", "B", "C"},
		map[catalog.EvidenceType]int{"A": 5},
		[]catalog.EvidenceType{"B", "C"},
	)
	if len(report.MissingTypes) != 0 || report.CoveragePercent != 100 || !report.Ready {
		t.Fatalf("expected full coverage, got %+v", report)
	}
}

func TestComputeEdgeCases(t *testing.T) {
	empty := Compute(nil, nil, nil)
	if empty.CoveragePercent != 100 || !empty.Ready || len(empty.MissingTypes) != 0 {
		t.Fatalf("no requirements should be fully covered: %+v", empty)
	}

	zero := Compute([]catalog.EvidenceType{"A", "A"}, map[catalog.EvidenceType]int{"A": 0}, nil)
	if len(zero.RequiredTypes) != 1 || zero.CoveragePercent != 0 {
		t.Fatalf("duplicate requirements collapse and zero counts do not cover: %+v", zero)
	}
}

func TestBuildStateUnion(t *testing.T) {
	c := catalog.Default()
	st := BuildState(c,
		map[catalog.EvidenceType]int{"complaint_record": 12, "capa_record": 0},
		[]string{"complaints", "vigilance", "complaints"},
		[]catalog.EvidenceType{"pmcf_result", "recall_record"},
	)

	if st.Total() != 12 {
		t.Fatalf("unexpected total %d", st.Total())
	}
	if _, ok := st.ByType["capa_record"]; ok {
		t.Fatalf("zero counts should not be reported")
	}
	wantSources := []string{"complaints", "vigilance", SourceNotApplicable}
	if !reflect.DeepEqual(st.CoveredSources, wantSources) {
		t.Fatalf("sources %v, want %v", st.CoveredSources, wantSources)
	}
	wantTypes := []catalog.EvidenceType{
		"complaint_record", "trend_report", "serious_incident_record", "fsca_record", "recall_record", "pmcf_result",
	}
	if !reflect.DeepEqual(st.CoveredTypes, wantTypes) {
		t.Fatalf("types %v, want %v", st.CoveredTypes, wantTypes)
	}
	if !reflect.DeepEqual(st.CoveredByType["complaint_record"], []string{ReasonData, "complaints"}) {
		t.Fatalf("unexpected reasons %v", st.CoveredByType["complaint_record"])
	}
	if !reflect.DeepEqual(st.CoveredByType["recall_record"], []string{"vigilance", SourceNotApplicable}) {
		t.Fatalf("unexpected reasons %v", st.CoveredByType["recall_record"])
	}
	if !reflect.DeepEqual(st.CoverageBySource[SourceNotApplicable], []catalog.EvidenceType{"recall_record", "pmcf_result"}) {
		t.Fatalf("not-applicable source should list marked types in catalog order: %v", st.CoverageBySource[SourceNotApplicable])
	}

	tpl, _ := c.Template("pmsr_class_i")
	report := ReportFor(tpl.RequiredTypes, st)
	want := []catalog.EvidenceType{"sales_volume", "capa_record"}
	if !reflect.DeepEqual(report.MissingTypes, want) {
		t.Fatalf("missing %v, want %v", report.MissingTypes, want)
	}
	if report.CoveragePercent != 60 {
		t.Fatalf("expected 60 percent, got %v", report.CoveragePercent)
	}
	for _, pt := range report.PerType {
		if pt.EvidenceType == "fsca_record" && !reflect.DeepEqual(pt.Reasons, []string{"vigilance"}) {
			t.Fatalf("fsca reasons %v", pt.Reasons)
		}
	}
}
