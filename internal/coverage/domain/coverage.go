package coverage

import (
	"math"
	"sort"

	"psur-evidence/internal/catalog"
)

// Coverage reasons.
const (
	ReasonData = "data"
	// SourceNotApplicable is the pseudo-source under which not-applicable
	// justifications are reported.
	SourceNotApplicable = "not_applicable"
)

// State is the coverage picture of one case, derived from stored atoms,
// committed uploads and not-applicable justifications. It is recomputed on
// every read and never updated incrementally.
type State struct {
	ByType           map[catalog.EvidenceType]int      `json:"by_type"`
	CoveredSources   []string                          `json:"covered_sources"`
	CoveredTypes     []catalog.EvidenceType            `json:"covered_types"`
	CoverageBySource map[string][]catalog.EvidenceType `json:"coverage_by_source"`
	CoveredByType    map[catalog.EvidenceType][]string `json:"covered_by_type"`
}

// Total returns the number of stored atoms.
func (s State) Total() int {
	total := 0
	for _, n := range s.ByType {
		total += n
	}
	return total
}

// BuildState unions three kinds of coverage: types with atoms, types covered
// transitively by an uploaded source category, and types marked not
// applicable. Lists follow catalog order.
func BuildState(c *catalog.Catalog, counts map[catalog.EvidenceType]int, uploadedCategories []string, notApplicable []catalog.EvidenceType) State {
	st := State{
		ByType:           make(map[catalog.EvidenceType]int, len(counts)),
		CoverageBySource: make(map[string][]catalog.EvidenceType),
		CoveredByType:    make(map[catalog.EvidenceType][]string),
	}
	addReason := func(t catalog.EvidenceType, reason string) {
		for _, r := range st.CoveredByType[t] {
			if r == reason {
				return
			}
		}
		st.CoveredByType[t] = append(st.CoveredByType[t], reason)
	}

	for t, n := range counts {
		if n <= 0 {
			continue
		}
		st.ByType[t] = n
		addReason(t, ReasonData)
	}

	uploaded := make(map[string]struct{}, len(uploadedCategories))
	for _, name := range uploadedCategories {
		uploaded[name] = struct{}{}
	}
	for _, cat := range c.Categories() {
		if _, ok := uploaded[cat.Name]; !ok {
			continue
		}
		st.CoveredSources = append(st.CoveredSources, cat.Name)
		st.CoverageBySource[cat.Name] = append([]catalog.EvidenceType(nil), cat.Covers...)
		for _, t := range cat.Covers {
			addReason(t, cat.Name)
		}
	}

	if len(notApplicable) > 0 {
		var naTypes []catalog.EvidenceType
		seen := make(map[catalog.EvidenceType]struct{}, len(notApplicable))
		for _, t := range orderTypes(c, notApplicable) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			naTypes = append(naTypes, t)
			addReason(t, SourceNotApplicable)
		}
		st.CoveredSources = append(st.CoveredSources, SourceNotApplicable)
		st.CoverageBySource[SourceNotApplicable] = naTypes
	}

	covered := make([]catalog.EvidenceType, 0, len(st.CoveredByType))
	for t := range st.CoveredByType {
		covered = append(covered, t)
	}
	st.CoveredTypes = orderTypes(c, covered)
	return st
}

// orderTypes sorts types by catalog order; unknown types go last by name.
func orderTypes(c *catalog.Catalog, types []catalog.EvidenceType) []catalog.EvidenceType {
	rank := make(map[catalog.EvidenceType]int)
	for i, t := range c.Types() {
		rank[t] = i
	}
	out := append([]catalog.EvidenceType(nil), types...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// TypeStatus is the coverage of one required type.
type TypeStatus struct {
	EvidenceType catalog.EvidenceType `json:"evidence_type"`
	AtomCount    int                  `json:"atom_count"`
	Covered      bool                 `json:"covered"`
	Reasons      []string             `json:"reasons,omitempty"`
}

// Report is the coverage of a case against its required types.
type Report struct {
	RequiredTypes   []catalog.EvidenceType `json:"required_types"`
	MissingTypes    []catalog.EvidenceType `json:"missing_types"`
	CoveragePercent float64                `json:"coverage_percent"`
	PerType         []TypeStatus           `json:"per_type"`
	Ready           bool                   `json:"ready"`
}

// Compute reports which required types are neither backed by atoms nor in
// coveredFromSources. The percent is rounded to two decimals and is 100 when
// nothing is required.
func Compute(required []catalog.EvidenceType, counts map[catalog.EvidenceType]int, coveredFromSources []catalog.EvidenceType) Report {
	fromSources := make(map[catalog.EvidenceType]struct{}, len(coveredFromSources))
	for _, t := range coveredFromSources {
		fromSources[t] = struct{}{}
	}

	report := Report{RequiredTypes: []catalog.EvidenceType{}, MissingTypes: []catalog.EvidenceType{}}
	seen := make(map[catalog.EvidenceType]struct{}, len(required))
	for _, t := range required {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		report.RequiredTypes = append(report.RequiredTypes, t)

		status := TypeStatus{EvidenceType: t, AtomCount: counts[t]}
		if status.AtomCount > 0 {
			status.Covered = true
			status.Reasons = append(status.Reasons, ReasonData)
		}
		if _, ok := fromSources[t]; ok {
			status.Covered = true
		}
		if !status.Covered {
			report.MissingTypes = append(report.MissingTypes, t)
		}
		report.PerType = append(report.PerType, status)
	}

	if len(report.RequiredTypes) == 0 {
		report.CoveragePercent = 100
	} else {
		covered := len(report.RequiredTypes) - len(report.MissingTypes)
		pct := float64(covered) / float64(len(report.RequiredTypes)) * 100
		report.CoveragePercent = math.Round(pct*100) / 100
	}
	report.Ready = len(report.MissingTypes) == 0
	return report
}

// ReportFor computes the report for required types from a built state and
// attaches per-type reasons.
func ReportFor(required []catalog.EvidenceType, st State) Report {
	report := Compute(required, st.ByType, st.CoveredTypes)
	for i := range report.PerType {
		report.PerType[i].Reasons = append([]string(nil), st.CoveredByType[report.PerType[i].EvidenceType]...)
	}
	return report
}
