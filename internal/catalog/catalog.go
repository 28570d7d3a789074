package catalog

import "sort"

// EvidenceType identifies a canonical category of surveillance data.
type EvidenceType string

// Field is one canonical target field of an evidence schema.
type Field struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Schema is the ordered field list of one evidence type.
type Schema struct {
	Type           EvidenceType `json:"evidence_type"`
	Category       string       `json:"source_category"`
	Fields         []Field      `json:"fields"`
	IdentityFields []string     `json:"identity_fields"`
}

// FieldNames returns field names in schema order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// RequiredFields returns required field names in schema order.
func (s Schema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// HasField reports whether name is a field of the schema.
func (s Schema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// SourceCategory is an upload source that subsumes one or more evidence types.
type SourceCategory struct {
	Name   string         `json:"name"`
	Covers []EvidenceType `json:"covers"`
}

// Template names the evidence types a report template requires.
type Template struct {
	ID            string         `json:"id"`
	RequiredTypes []EvidenceType `json:"required_types"`
}

// Catalog is the read-only registry of schemas, aliases, categories and templates.
// It is built once by Parse and never mutated afterwards.
type Catalog struct {
	version    string
	order      []EvidenceType
	schemas    map[EvidenceType]Schema
	aliases    map[string][]string
	categories map[string]SourceCategory
	catOrder   []string
	templates  map[string]Template
}

// Version returns the catalog version string.
func (c *Catalog) Version() string { return c.version }

// Types returns every evidence type in catalog order.
func (c *Catalog) Types() []EvidenceType {
	return append([]EvidenceType(nil), c.order...)
}

// Known reports whether t is part of the catalog.
func (c *Catalog) Known(t EvidenceType) bool {
	_, ok := c.schemas[t]
	return ok
}

// Schema returns a copy of the schema of t.
func (c *Catalog) Schema(t EvidenceType) (Schema, bool) {
	s, ok := c.schemas[t]
	if !ok {
		return Schema{}, false
	}
	s.Fields = append([]Field(nil), s.Fields...)
	s.IdentityFields = append([]string(nil), s.IdentityFields...)
	return s, true
}

// Aliases returns the known alternate spellings of a canonical field.
func (c *Catalog) Aliases(field string) []string {
	return append([]string(nil), c.aliases[field]...)
}

// CategoryOf returns the primary source category of t.
func (c *Catalog) CategoryOf(t EvidenceType) string {
	return c.schemas[t].Category
}

// Category returns a source category by name.
func (c *Catalog) Category(name string) (SourceCategory, bool) {
	cat, ok := c.categories[name]
	if !ok {
		return SourceCategory{}, false
	}
	cat.Covers = append([]EvidenceType(nil), cat.Covers...)
	return cat, true
}

// Categories returns all source categories in catalog order.
func (c *Catalog) Categories() []SourceCategory {
	out := make([]SourceCategory, 0, len(c.catOrder))
	for _, name := range c.catOrder {
		cat, _ := c.Category(name)
		out = append(out, cat)
	}
	return out
}

// Template returns a template by id.
func (c *Catalog) Template(id string) (Template, bool) {
	tpl, ok := c.templates[id]
	if !ok {
		return Template{}, false
	}
	tpl.RequiredTypes = append([]EvidenceType(nil), tpl.RequiredTypes...)
	return tpl, true
}

// Templates returns all templates ordered by id.
func (c *Catalog) Templates() []Template {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Template, 0, len(ids))
	for _, id := range ids {
		tpl, _ := c.Template(id)
		out = append(out, tpl)
	}
	return out
}
