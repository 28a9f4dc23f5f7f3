package store

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/discoverlab/enginekit/engine"
)

var (
	bucketDocuments = []byte("documents")
	bucketSearch    = []byte("search")
	bucketSources   = []byte("sources")

	keyActiveSearch = []byte("active")
)

// BoltStore implements Store on an embedded bbolt database file.
type BoltStore struct {
	db     *bolt.DB
	closed atomic.Bool
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDocuments, bucketSearch, bucketSources} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// PutDocuments upserts cached documents.
func (s *BoltStore) PutDocuments(docs []engine.Document) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		for _, doc := range docs {
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document %s: %w", doc.ID, err)
			}
			if err := b.Put([]byte(doc.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Document retrieves one cached document.
func (s *BoltStore) Document(id string) (*engine.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var doc *engine.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var d engine.Document
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("decode document %s: %w", id, err)
		}
		doc = &d
		return nil
	})
	return doc, err
}

// Documents lists all cached documents.
func (s *BoltStore) Documents() ([]engine.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var docs []engine.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var d engine.Document
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("decode document %s: %w", k, err)
			}
			docs = append(docs, d)
			return nil
		})
	})
	return docs, err
}

// SaveSearch persists the active search state.
func (s *BoltStore) SaveSearch(search *Search) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(search)
	if err != nil {
		return fmt.Errorf("encode search: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSearch).Put(keyActiveSearch, data)
	})
}

// ActiveSearch returns the persisted search state.
func (s *BoltStore) ActiveSearch() (*Search, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var search *Search
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSearch).Get(keyActiveSearch)
		if data == nil {
			return ErrNotFound
		}
		var se Search
		if err := json.Unmarshal(data, &se); err != nil {
			return fmt.Errorf("decode search: %w", err)
		}
		search = &se
		return nil
	})
	return search, err
}

// ClearSearch removes the active search state.
func (s *BoltStore) ClearSearch() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSearch).Delete(keyActiveSearch)
	})
}

// SetSourcePreference records a preference for a source.
func (s *BoltStore) SetSourcePreference(source string, pref SourcePreference) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSources)
		if pref == "" {
			return b.Delete([]byte(source))
		}
		return b.Put([]byte(source), []byte(pref))
	})
}

// SourcePreferences lists all recorded source preferences.
func (s *BoltStore) SourcePreferences() (map[string]SourcePreference, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	prefs := make(map[string]SourcePreference)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSources).ForEach(func(k, v []byte) error {
			prefs[string(k)] = SourcePreference(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// Close releases the database file. Idempotent.
func (s *BoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
