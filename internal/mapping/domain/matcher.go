package mapping

import (
	"strings"

	"psur-evidence/internal/catalog"
)

// Candidate scores, highest first.
const (
	ScoreExact        = 1.0
	ScoreAlias        = 0.95
	ScoreAliasPartial = 0.8
	ScorePartial      = 0.7
	ScoreOverlap      = 0.5

	// MinConfidence is the lowest score accepted as a mapping.
	MinConfidence = 0.5

	overlapRatio = 0.6
)

type target struct {
	name    string
	norm    string
	aliases []string
}

// Matcher proposes column mappings from the static catalog. It holds only
// precomputed read-only tables and is safe for concurrent use.
type Matcher struct {
	schemas map[catalog.EvidenceType]catalog.Schema
	targets map[catalog.EvidenceType][]target
}

// NewMatcher precomputes normalized field names and aliases for every type.
func NewMatcher(c *catalog.Catalog) *Matcher {
	m := &Matcher{
		schemas: make(map[catalog.EvidenceType]catalog.Schema),
		targets: make(map[catalog.EvidenceType][]target),
	}
	for _, t := range c.Types() {
		schema, _ := c.Schema(t)
		m.schemas[t] = schema
		list := make([]target, 0, len(schema.Fields))
		for _, f := range schema.Fields {
			tg := target{name: f.Name, norm: catalog.Normalize(f.Name)}
			for _, alias := range c.Aliases(f.Name) {
				if n := catalog.Normalize(alias); n != "" {
					tg.aliases = append(tg.aliases, n)
				}
			}
			list = append(list, tg)
		}
		m.targets[t] = list
	}
	return m
}

// Match maps source columns onto the schema of t. Columns are processed in
// input order and each claims its best unclaimed field; ties go to the field
// listed first in the schema. It never fails: anything left over is reported
// in UnmappedSource and UnmappedTarget.
func (m *Matcher) Match(sourceColumns []string, t catalog.EvidenceType) Config {
	targets, ok := m.targets[t]
	if !ok {
		return Complete(t, nil, sourceColumns, catalog.Schema{Type: t})
	}

	claimed := make([]bool, len(targets))
	seen := make(map[string]struct{}, len(sourceColumns))
	var mappings []ColumnMapping
	for _, col := range sourceColumns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}

		ns := catalog.Normalize(col)
		if ns == "" {
			continue
		}
		best, bestScore := -1, 0.0
		for i, tg := range targets {
			if claimed[i] {
				continue
			}
			if s := score(ns, tg); s > bestScore {
				best, bestScore = i, s
			}
		}
		if best < 0 || bestScore < MinConfidence {
			continue
		}
		claimed[best] = true
		mappings = append(mappings, ColumnMapping{
			SourceColumn: col,
			TargetField:  targets[best].name,
			Confidence:   bestScore,
			AutoMapped:   true,
		})
	}
	return Complete(t, mappings, sourceColumns, m.schemas[t])
}

func score(ns string, tg target) float64 {
	if ns == tg.norm {
		return ScoreExact
	}
	for _, alias := range tg.aliases {
		if ns == alias {
			return ScoreAlias
		}
	}
	for _, alias := range tg.aliases {
		if strings.Contains(ns, alias) || strings.Contains(alias, ns) {
			return ScoreAliasPartial
		}
	}
	if strings.Contains(ns, tg.norm) || strings.Contains(tg.norm, ns) {
		return ScorePartial
	}
	if charOverlap(ns, tg.norm) > overlapRatio {
		return ScoreOverlap
	}
	return 0
}

// charOverlap is the share of runes of source that also occur in target.
func charOverlap(source, target string) float64 {
	total, hits := 0, 0
	for _, r := range source {
		total++
		if strings.ContainsRune(target, r) {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
