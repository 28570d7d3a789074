package mapping

import (
	"fmt"

	"psur-evidence/internal/catalog"
)

// ColumnMapping binds one source column to one canonical target field.
type ColumnMapping struct {
	SourceColumn string  `json:"source_column"`
	TargetField  string  `json:"target_field"`
	Confidence   float64 `json:"confidence"`
	AutoMapped   bool    `json:"auto_mapped"`
}

// Config is a full mapping decision for one upload. Source columns and target
// fields are each used at most once.
type Config struct {
	EvidenceType   catalog.EvidenceType `json:"evidence_type"`
	Mappings       []ColumnMapping      `json:"mappings"`
	UnmappedSource []string             `json:"unmapped_source"`
	UnmappedTarget []string             `json:"unmapped_target"`
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Mappings = append([]ColumnMapping(nil), c.Mappings...)
	c.UnmappedSource = append([]string(nil), c.UnmappedSource...)
	c.UnmappedTarget = append([]string(nil), c.UnmappedTarget...)
	return c
}

// TargetOf returns the field a source column is mapped to.
func (c Config) TargetOf(source string) (string, bool) {
	for _, m := range c.Mappings {
		if m.SourceColumn == source {
			return m.TargetField, true
		}
	}
	return "", false
}

// SourceOf returns the column mapped onto a target field.
func (c Config) SourceOf(target string) (string, bool) {
	for _, m := range c.Mappings {
		if m.TargetField == target {
			return m.SourceColumn, true
		}
	}
	return "", false
}

// AsMap returns source column -> target field.
func (c Config) AsMap() map[string]string {
	out := make(map[string]string, len(c.Mappings))
	for _, m := range c.Mappings {
		out[m.SourceColumn] = m.TargetField
	}
	return out
}

// Columns returns every input column the config knows about, mapped first.
func (c Config) Columns() []string {
	out := make([]string, 0, len(c.Mappings)+len(c.UnmappedSource))
	for _, m := range c.Mappings {
		out = append(out, m.SourceColumn)
	}
	return append(out, c.UnmappedSource...)
}

// MissingRequired lists required schema fields that no column maps to.
func (c Config) MissingRequired(schema catalog.Schema) []string {
	var missing []string
	for _, f := range schema.Fields {
		if !f.Required {
			continue
		}
		if _, ok := c.SourceOf(f.Name); !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Validate checks the uniqueness invariants and that every pair references an
// input column and a schema field.
func (c Config) Validate(schema catalog.Schema, columns []string) error {
	inputs := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		inputs[col] = struct{}{}
	}
	sources := make(map[string]struct{}, len(c.Mappings))
	targets := make(map[string]struct{}, len(c.Mappings))
	for _, m := range c.Mappings {
		if _, ok := inputs[m.SourceColumn]; !ok {
			return fmt.Errorf("mapping: unknown source column %q", m.SourceColumn)
		}
		if !schema.HasField(m.TargetField) {
			return fmt.Errorf("mapping: %q is not a field of %s", m.TargetField, schema.Type)
		}
		if _, dup := sources[m.SourceColumn]; dup {
			return fmt.Errorf("mapping: source column %q mapped twice", m.SourceColumn)
		}
		if _, dup := targets[m.TargetField]; dup {
			return fmt.Errorf("mapping: target field %q mapped twice", m.TargetField)
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			return fmt.Errorf("mapping: confidence %v out of range", m.Confidence)
		}
		sources[m.SourceColumn] = struct{}{}
		targets[m.TargetField] = struct{}{}
	}
	return nil
}

// Complete recomputes the unmapped sets from the input columns and schema.
func Complete(t catalog.EvidenceType, mappings []ColumnMapping, columns []string, schema catalog.Schema) Config {
	cfg := Config{EvidenceType: t, Mappings: append([]ColumnMapping(nil), mappings...)}
	mappedSources := make(map[string]struct{}, len(mappings))
	mappedTargets := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		mappedSources[m.SourceColumn] = struct{}{}
		mappedTargets[m.TargetField] = struct{}{}
	}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		if _, ok := mappedSources[col]; !ok {
			cfg.UnmappedSource = append(cfg.UnmappedSource, col)
		}
	}
	for _, f := range schema.Fields {
		if _, ok := mappedTargets[f.Name]; !ok {
			cfg.UnmappedTarget = append(cfg.UnmappedTarget, f.Name)
		}
	}
	return cfg
}
