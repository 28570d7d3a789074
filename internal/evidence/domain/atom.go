package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"psur-evidence/internal/catalog"
	mapping "psur-evidence/internal/mapping/domain"
)

// Row is one parsed source row keyed by source column name.
type Row map[string]any

// Atom is one committed evidence record with data keyed by canonical field.
type Atom struct {
	ID             string               `json:"id"`
	CaseID         string               `json:"case_id"`
	EvidenceType   catalog.EvidenceType `json:"evidence_type"`
	SourceCategory string               `json:"source_category"`
	RowIdentity    string               `json:"row_identity"`
	Data           map[string]any       `json:"data"`
	CreatedAt      time.Time            `json:"created_at"`
}

// SourceUpload records one committed upload. Uploads drive transitive
// coverage through their source category.
type SourceUpload struct {
	ID                string               `json:"id"`
	CaseID            string               `json:"case_id"`
	EvidenceType      catalog.EvidenceType `json:"evidence_type"`
	SourceCategory    string               `json:"source_category"`
	RowsReceived      int                  `json:"rows_received"`
	AtomsCreated      int                  `json:"atoms_created"`
	DuplicatesSkipped int                  `json:"duplicates_skipped"`
	BlankRowsSkipped  int                  `json:"blank_rows_skipped"`
	UploadedAt        time.Time            `json:"uploaded_at"`
}

// HasContent reports whether the upload carried at least one non-blank row.
// Only such uploads cover their source category.
func (u SourceUpload) HasContent() bool {
	return u.RowsReceived > u.BlankRowsSkipped
}

// Batch is the result of mapping rows to atoms before persistence.
type Batch struct {
	Atoms             []Atom
	DuplicatesInBatch int
	BlankRows         int
}

// BuildAtoms maps rows through cfg. Rows without any non-blank mapped value
// are dropped; rows whose identity repeats an earlier row are counted as
// duplicates. Atom ids and timestamps are left for the caller.
func BuildAtoms(caseID string, schema catalog.Schema, category string, cfg mapping.Config, rows []Row) Batch {
	var batch Batch
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		data := make(map[string]any, len(cfg.Mappings))
		for _, m := range cfg.Mappings {
			value, ok := row[m.SourceColumn]
			if !ok || isBlank(value) {
				continue
			}
			if s, isString := value.(string); isString {
				value = strings.TrimSpace(s)
			}
			data[m.TargetField] = value
		}
		if len(data) == 0 {
			batch.BlankRows++
			continue
		}
		identity := RowIdentity(schema, data)
		if _, dup := seen[identity]; dup {
			batch.DuplicatesInBatch++
			continue
		}
		seen[identity] = struct{}{}
		batch.Atoms = append(batch.Atoms, Atom{
			CaseID:         caseID,
			EvidenceType:   schema.Type,
			SourceCategory: category,
			RowIdentity:    identity,
			Data:           data,
		})
	}
	return batch
}

// RowIdentity derives the de-duplication key of a mapped record. It uses the
// schema identity fields when all are present and otherwise the whole record.
func RowIdentity(schema catalog.Schema, data map[string]any) string {
	if key, ok := identityKey(schema.IdentityFields, data); ok {
		return hashKey("id", key)
	}
	// encoding/json sorts map keys, which makes the payload canonical.
	payload, err := json.Marshal(canonical(data))
	if err != nil {
		payload = []byte(fmt.Sprint(data))
	}
	return hashKey("row", string(payload))
}

func identityKey(fields []string, data map[string]any) (string, bool) {
	if len(fields) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		value, ok := data[f]
		if !ok || isBlank(value) {
			return "", false
		}
		parts = append(parts, f+"="+strings.ToLower(strings.TrimSpace(fmt.Sprint(value))))
	}
	return strings.Join(parts, "\x1f"), true
}

func canonical(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func hashKey(kind, key string) string {
	sum := sha256.Sum256([]byte(kind + ":" + key))
	return hex.EncodeToString(sum[:])
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// AtomStore persists atoms and upload records.
type AtomStore interface {
	// CommitBatch stores atoms whose (case, type, identity) is new and appends
	// upload in the same unit of work. It sets upload.AtomsCreated and adds the
	// already-stored rows to upload.DuplicatesSkipped.
	CommitBatch(ctx context.Context, upload *SourceUpload, atoms []Atom) error
	CountByType(ctx context.Context, caseID string) (map[catalog.EvidenceType]int, error)
	ListUploads(ctx context.Context, caseID string) ([]SourceUpload, error)
	ListAtoms(ctx context.Context, caseID string, t catalog.EvidenceType) ([]Atom, error)
}
