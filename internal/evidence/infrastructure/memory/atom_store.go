package memory

import (
	"context"
	"sort"
	"sync"

	"psur-evidence/internal/catalog"
	evidence "psur-evidence/internal/evidence/domain"
)

// AtomStore is an in-memory atom and upload store for demo/testing.
type AtomStore struct {
	mu         sync.RWMutex
	atoms      map[atomKey]evidence.Atom
	uploads    map[string][]evidence.SourceUpload
	countCache map[string]map[catalog.EvidenceType]int
}

type atomKey struct {
	caseID       string
	evidenceType catalog.EvidenceType
	identity     string
}

// NewAtomStore constructs a store.
func NewAtomStore() *AtomStore {
	return &AtomStore{
		atoms:      make(map[atomKey]evidence.Atom),
		uploads:    make(map[string][]evidence.SourceUpload),
		countCache: make(map[string]map[catalog.EvidenceType]int),
	}
}

// CommitBatch stores new atoms and appends the upload under one lock.
func (s *AtomStore) CommitBatch(ctx context.Context, upload *evidence.SourceUpload, atoms []evidence.Atom) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, atom := range atoms {
		key := atomKey{caseID: atom.CaseID, evidenceType: atom.EvidenceType, identity: atom.RowIdentity}
		if _, exists := s.atoms[key]; exists {
			continue
		}
		s.atoms[key] = cloneAtom(atom)
		counts := s.countCache[atom.CaseID]
		if counts == nil {
			counts = make(map[catalog.EvidenceType]int)
			s.countCache[atom.CaseID] = counts
		}
		counts[atom.EvidenceType]++
		created++
	}
	upload.AtomsCreated = created
	upload.DuplicatesSkipped += len(atoms) - created
	s.uploads[upload.CaseID] = append(s.uploads[upload.CaseID], *upload)
	return nil
}

// CountByType returns atom counts per evidence type for a case.
func (s *AtomStore) CountByType(ctx context.Context, caseID string) (map[catalog.EvidenceType]int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[catalog.EvidenceType]int, len(s.countCache[caseID]))
	for t, n := range s.countCache[caseID] {
		out[t] = n
	}
	return out, nil
}

// ListUploads returns uploads for a case in commit order.
func (s *AtomStore) ListUploads(ctx context.Context, caseID string) ([]evidence.SourceUpload, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]evidence.SourceUpload(nil), s.uploads[caseID]...), nil
}

// ListAtoms returns the stored atoms of one type for a case, oldest first.
func (s *AtomStore) ListAtoms(ctx context.Context, caseID string, t catalog.EvidenceType) ([]evidence.Atom, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []evidence.Atom
	for key, atom := range s.atoms {
		if key.caseID == caseID && key.evidenceType == t {
			out = append(out, cloneAtom(atom))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneAtom(atom evidence.Atom) evidence.Atom {
	data := make(map[string]any, len(atom.Data))
	for k, v := range atom.Data {
		data[k] = v
	}
	atom.Data = data
	return atom
}
