package progress

import (
	"context"
	"sync"
)

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	last    *Record
	prefs   *Preferences
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Save(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = stamp(r)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[chapterKey(r.BookID, r.ChapterID)] = r
	m.last = &r
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, bookID, chapterID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if chapterID != "" {
		r, ok := m.records[chapterKey(bookID, chapterID)]
		if !ok {
			return nil, ErrNotFound
		}
		return &r, nil
	}

	var newest *Record
	for _, r := range m.records {
		if r.BookID != bookID {
			continue
		}
		if newest == nil || r.SavedAt.After(newest.SavedAt) {
			r := r
			newest = &r
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return newest, nil
}

func (m *MemoryStore) Last(ctx context.Context) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil, ErrNotFound
	}
	r := *m.last
	return &r, nil
}

func (m *MemoryStore) SavePreferences(ctx context.Context, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = &p
	return nil
}

func (m *MemoryStore) LoadPreferences(ctx context.Context) (*Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prefs == nil {
		return nil, ErrNotFound
	}
	p := *m.prefs
	return &p, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
