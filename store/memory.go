package store

import (
	"sync"
	"sync/atomic"

	"github.com/discoverlab/enginekit/engine"
)

// MemoryStore implements Store in memory. Useful for tests and ephemeral
// sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]engine.Document
	search  *Search
	sources map[string]SourcePreference
	closed  atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]engine.Document),
		sources: make(map[string]SourcePreference),
	}
}

// PutDocuments upserts cached documents.
func (s *MemoryStore) PutDocuments(docs []engine.Document) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return nil
}

// Document retrieves one cached document.
func (s *MemoryStore) Document(id string) (*engine.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

// Documents lists all cached documents.
func (s *MemoryStore) Documents() ([]engine.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]engine.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	return docs, nil
}

// SaveSearch persists the active search state.
func (s *MemoryStore) SaveSearch(search *Search) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *search
	s.search = &copied
	return nil
}

// ActiveSearch returns the persisted search state.
func (s *MemoryStore) ActiveSearch() (*Search, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.search == nil {
		return nil, ErrNotFound
	}
	copied := *s.search
	return &copied, nil
}

// ClearSearch removes the active search state.
func (s *MemoryStore) ClearSearch() error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = nil
	return nil
}

// SetSourcePreference records a preference for a source.
func (s *MemoryStore) SetSourcePreference(source string, pref SourcePreference) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pref == "" {
		delete(s.sources, source)
		return nil
	}
	s.sources[source] = pref
	return nil
}

// SourcePreferences lists all recorded source preferences.
func (s *MemoryStore) SourcePreferences() (map[string]SourcePreference, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs := make(map[string]SourcePreference, len(s.sources))
	for k, v := range s.sources {
		prefs[k] = v
	}
	return prefs, nil
}

// Close marks the store closed. Idempotent.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
