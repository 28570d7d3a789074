package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	reconciliation "psur-evidence/internal/reconciliation/domain"
)

const lockStripes = 64

// SessionStore keeps sessions in an expiring cache. Abandoned sessions are
// evicted after the TTL without further cleanup.
type SessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
	locks [lockStripes]sync.Mutex
}

var _ reconciliation.Store = (*SessionStore)(nil)

// NewSessionStore creates a store whose entries expire ttl after their last update.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cleanup := ttl / 4
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &SessionStore{cache: cache.New(ttl, cleanup), ttl: ttl}
}

func (s *SessionStore) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *SessionStore) Create(ctx context.Context, session *reconciliation.Session) error {
	if session == nil {
		return nil
	}
	mu := s.lock(session.ID)
	mu.Lock()
	defer mu.Unlock()
	s.cache.Set(session.ID, session.Clone(), s.ttl)
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*reconciliation.Session, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, reconciliation.ErrSessionNotFound
	}
	return v.(*reconciliation.Session).Clone(), nil
}

// Update applies fn to a copy of the session under its stripe lock and stores
// the copy only when fn succeeds.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*reconciliation.Session) error) (*reconciliation.Session, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	v, ok := s.cache.Get(id)
	if !ok {
		return nil, reconciliation.ErrSessionNotFound
	}
	working := v.(*reconciliation.Session).Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.cache.Set(id, working, s.ttl)
	return working.Clone(), nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()
	if _, ok := s.cache.Get(id); !ok {
		return reconciliation.ErrSessionNotFound
	}
	s.cache.Delete(id)
	return nil
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	return s.cache.ItemCount()
}
