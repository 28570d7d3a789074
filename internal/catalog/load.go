package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// minAliasLength guards the substring rule of the matcher: a two-letter alias
// would be contained in almost every column name.
const minAliasLength = 3

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

type fileCatalog struct {
	Version    string              `yaml:"version"`
	Categories []fileCategory      `yaml:"categories"`
	Types      []fileSchema        `yaml:"types"`
	Aliases    map[string][]string `yaml:"aliases"`
	Templates  []fileTemplate      `yaml:"templates"`
}

type fileCategory struct {
	Name   string   `yaml:"name"`
	Covers []string `yaml:"covers"`
}

type fileSchema struct {
	Type     string      `yaml:"type"`
	Category string      `yaml:"category"`
	Identity []string    `yaml:"identity"`
	Fields   []fileField `yaml:"fields"`
}

type fileField struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
}

type fileTemplate struct {
	ID       string   `yaml:"id"`
	Required []string `yaml:"required"`
}

// Default returns the embedded catalog. It panics if the embedded file is invalid,
// which can only happen with a broken build.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(embeddedCatalog)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", defaultErr))
	}
	return defaultCat
}

// Load reads a catalog file; an empty path returns the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds and validates a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var raw fileCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(raw.Types) == 0 {
		return nil, errors.New("catalog: no evidence types")
	}

	c := &Catalog{
		version:    raw.Version,
		schemas:    make(map[EvidenceType]Schema, len(raw.Types)),
		aliases:    make(map[string][]string, len(raw.Aliases)),
		categories: make(map[string]SourceCategory, len(raw.Categories)),
		templates:  make(map[string]Template, len(raw.Templates)),
	}

	allFields := make(map[string]struct{})
	for _, fs := range raw.Types {
		t := EvidenceType(fs.Type)
		if t == "" {
			return nil, errors.New("catalog: empty evidence type")
		}
		if _, dup := c.schemas[t]; dup {
			return nil, fmt.Errorf("catalog: duplicate evidence type %q", t)
		}
		if len(fs.Fields) == 0 {
			return nil, fmt.Errorf("catalog: %s has no fields", t)
		}
		schema := Schema{Type: t, Category: fs.Category}
		seen := make(map[string]struct{}, len(fs.Fields))
		for _, f := range fs.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("catalog: %s has an empty field name", t)
			}
			key := Normalize(f.Name)
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("catalog: %s field %q duplicated", t, f.Name)
			}
			seen[key] = struct{}{}
			allFields[f.Name] = struct{}{}
			schema.Fields = append(schema.Fields, Field{Name: f.Name, Required: f.Required})
		}
		for _, id := range fs.Identity {
			if !schema.HasField(id) {
				return nil, fmt.Errorf("catalog: %s identity field %q not in schema", t, id)
			}
			schema.IdentityFields = append(schema.IdentityFields, id)
		}
		c.schemas[t] = schema
		c.order = append(c.order, t)
	}

	for _, fc := range raw.Categories {
		if fc.Name == "" {
			return nil, errors.New("catalog: empty category name")
		}
		if _, dup := c.categories[fc.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %q", fc.Name)
		}
		cat := SourceCategory{Name: fc.Name}
		for _, name := range fc.Covers {
			t := EvidenceType(name)
			if !c.Known(t) {
				return nil, fmt.Errorf("catalog: category %s covers unknown type %q", fc.Name, name)
			}
			cat.Covers = append(cat.Covers, t)
		}
		c.categories[fc.Name] = cat
		c.catOrder = append(c.catOrder, fc.Name)
	}

	for _, t := range c.order {
		schema := c.schemas[t]
		cat, ok := c.categories[schema.Category]
		if !ok {
			return nil, fmt.Errorf("catalog: %s has unknown category %q", t, schema.Category)
		}
		if !containsType(cat.Covers, t) {
			return nil, fmt.Errorf("catalog: category %s does not cover its own type %s", cat.Name, t)
		}
	}

	for field, aliases := range raw.Aliases {
		if _, ok := allFields[field]; !ok {
			return nil, fmt.Errorf("catalog: aliases for unknown field %q", field)
		}
		for _, alias := range aliases {
			if len(Normalize(alias)) < minAliasLength {
				return nil, fmt.Errorf("catalog: alias %q of %s too short", alias, field)
			}
		}
		c.aliases[field] = append([]string(nil), aliases...)
	}

	for _, ft := range raw.Templates {
		if ft.ID == "" {
			return nil, errors.New("catalog: empty template id")
		}
		if _, dup := c.templates[ft.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate template %q", ft.ID)
		}
		tpl := Template{ID: ft.ID}
		for _, name := range ft.Required {
			t := EvidenceType(name)
			if !c.Known(t) {
				return nil, fmt.Errorf("catalog: template %s requires unknown type %q", ft.ID, name)
			}
			tpl.RequiredTypes = append(tpl.RequiredTypes, t)
		}
		c.templates[ft.ID] = tpl
	}

	return c, nil
}

func containsType(list []EvidenceType, t EvidenceType) bool {
	for _, item := range list {
		if item == t {
			return true
		}
	}
	return false
}
