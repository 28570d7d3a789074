package mapping

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"psur-evidence/internal/catalog"
)

// Profile is a human-verified column mapping remembered for later uploads
// with the same column shape. Profiles are never deleted automatically.
type Profile struct {
	ID             string               `json:"id"`
	TenantID       string               `json:"tenant_id"`
	Name           string               `json:"name"`
	EvidenceType   catalog.EvidenceType `json:"evidence_type"`
	ColumnMappings map[string]string    `json:"column_mappings"`
	Signature      string               `json:"signature"`
	Verified       bool                 `json:"verified"`
	UsageCount     int                  `json:"usage_count"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	mappings := make(map[string]string, len(p.ColumnMappings))
	for k, v := range p.ColumnMappings {
		mappings[k] = v
	}
	p.ColumnMappings = mappings
	return p
}

// Validate checks profile invariants against the schema of its evidence type.
func (p Profile) Validate(schema catalog.Schema) error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyProfileName
	}
	if len(p.ColumnMappings) == 0 {
		return ErrEmptyProfileMappings
	}
	keys := make(map[string]string, len(p.ColumnMappings))
	targets := make(map[string]string, len(p.ColumnMappings))
	for source, field := range p.ColumnMappings {
		norm := catalog.Normalize(source)
		if norm == "" {
			return fmt.Errorf("mapping profile: blank source column %q", source)
		}
		if other, dup := keys[norm]; dup {
			return fmt.Errorf("mapping profile: columns %q and %q normalize to the same key", other, source)
		}
		if !schema.HasField(field) {
			return fmt.Errorf("mapping profile: %q is not a field of %s", field, schema.Type)
		}
		if other, dup := targets[field]; dup {
			return fmt.Errorf("mapping profile: columns %q and %q both map to %s", other, source, field)
		}
		keys[norm] = source
		targets[field] = source
	}
	return nil
}

// Signature derives the column-set signature used to key stored profiles.
func Signature(columns []string) string {
	set := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if n := catalog.Normalize(col); n != "" {
			set[n] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sum := sha1.Sum([]byte(strings.Join(keys, "|")))
	return hex.EncodeToString(sum[:])
}

// SourceColumns returns the profile's recorded source columns, sorted.
func (p Profile) SourceColumns() []string {
	cols := make([]string, 0, len(p.ColumnMappings))
	for col := range p.ColumnMappings {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Resolve maps every recorded source column onto an incoming column with the
// same normalized name. It fails unless all recorded columns resolve; partial
// overlap never qualifies.
func (p Profile) Resolve(columns []string) (map[string]string, bool) {
	if len(p.ColumnMappings) == 0 {
		return nil, false
	}
	incoming := make(map[string]string, len(columns))
	for _, col := range columns {
		n := catalog.Normalize(col)
		if n == "" {
			continue
		}
		if _, exists := incoming[n]; !exists {
			incoming[n] = col
		}
	}
	resolved := make(map[string]string, len(p.ColumnMappings))
	for recorded := range p.ColumnMappings {
		col, ok := incoming[catalog.Normalize(recorded)]
		if !ok {
			return nil, false
		}
		resolved[recorded] = col
	}
	return resolved, true
}

// Apply builds a mapping config for the incoming columns from the profile.
// The profile must resolve against columns.
func (p Profile) Apply(columns []string, schema catalog.Schema) (Config, bool) {
	resolved, ok := p.Resolve(columns)
	if !ok {
		return Config{}, false
	}
	byIncoming := make(map[string]string, len(resolved))
	for recorded, col := range resolved {
		byIncoming[col] = p.ColumnMappings[recorded]
	}
	var mappings []ColumnMapping
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		field, ok := byIncoming[col]
		if !ok {
			continue
		}
		mappings = append(mappings, ColumnMapping{
			SourceColumn: col,
			TargetField:  field,
			Confidence:   ScoreExact,
			AutoMapped:   true,
		})
	}
	return Complete(p.EvidenceType, mappings, columns, schema), true
}

// ProfileMatch is a stored profile that fully resolves against an upload.
type ProfileMatch struct {
	Profile      Profile `json:"profile"`
	CanAutoApply bool    `json:"can_auto_apply"`
}

// SelectProfile returns the best fully matching profile, or nil. More recorded
// columns win, then higher usage, then the most recently updated.
func SelectProfile(profiles []Profile, columns []string) *ProfileMatch {
	var best *Profile
	for i := range profiles {
		p := &profiles[i]
		if _, ok := p.Resolve(columns); !ok {
			continue
		}
		if best == nil || betterProfile(p, best) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	return &ProfileMatch{Profile: best.Clone(), CanAutoApply: best.Verified}
}

func betterProfile(a, b *Profile) bool {
	if len(a.ColumnMappings) != len(b.ColumnMappings) {
		return len(a.ColumnMappings) > len(b.ColumnMappings)
	}
	if a.UsageCount != b.UsageCount {
		return a.UsageCount > b.UsageCount
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// ProfileRepository persists mapping profiles.
type ProfileRepository interface {
	ListByEvidenceType(ctx context.Context, tenantID string, t catalog.EvidenceType) ([]Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
	// Save upserts by (tenant, evidence type, signature). On conflict the stored
	// id and creation time are kept and written back into profile.
	Save(ctx context.Context, profile *Profile) error
	IncrementUsage(ctx context.Context, id string) (int, error)
}
