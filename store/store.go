package store

import (
	"errors"

	"github.com/discoverlab/enginekit/engine"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// SourcePreference marks how a content source should be treated when
// assembling feed batches.
type SourcePreference string

const (
	// SourceTrusted boosts a source's documents.
	SourceTrusted SourcePreference = "trusted"

	// SourceExcluded removes a source's documents from feeds.
	SourceExcluded SourcePreference = "excluded"
)

// Search is the persisted state of the active search, kept so a restarted
// app can restore paging position.
type Search struct {
	Query    string `json:"query"`
	PageSize int    `json:"page_size"`
	NextPage int    `json:"next_page"`
}

// Store is the embedded persistence used by the discovery managers for
// cached documents, active-search state, and source preferences. The IPC
// core is agnostic to it and only carries the resulting domain objects.
type Store interface {
	// PutDocuments upserts cached documents.
	PutDocuments(docs []engine.Document) error

	// Document retrieves one cached document. Returns ErrNotFound when the
	// ID is unknown.
	Document(id string) (*engine.Document, error)

	// Documents lists all cached documents.
	Documents() ([]engine.Document, error)

	// SaveSearch persists the active search state.
	SaveSearch(s *Search) error

	// ActiveSearch returns the persisted search state, or ErrNotFound when
	// no search is active.
	ActiveSearch() (*Search, error)

	// ClearSearch removes the active search state.
	ClearSearch() error

	// SetSourcePreference records a preference for a source. An empty
	// preference removes the record.
	SetSourcePreference(source string, pref SourcePreference) error

	// SourcePreferences lists all recorded source preferences.
	SourcePreferences() (map[string]SourcePreference, error)

	// Close releases the store.
	Close() error
}
