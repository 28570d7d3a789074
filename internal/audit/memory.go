package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps audit entries in process memory.
type MemoryLogger struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLogger constructs an in-memory audit log.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends an entry.
func (l *MemoryLogger) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	entry = withDefaults(entry)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// List returns entries newest first.
func (l *MemoryLogger) List(ctx context.Context, tenantID, caseID string, limit int) ([]Entry, error) {
	_ = ctx
	if limit <= 0 {
		limit = defaultListLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var result []Entry
	for i := len(l.entries) - 1; i >= 0 && len(result) < limit; i-- {
		entry := l.entries[i]
		if entry.TenantID != tenantID {
			continue
		}
		if caseID != "" && entry.CaseID != caseID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}
