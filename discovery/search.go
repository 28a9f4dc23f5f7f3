package discovery

import (
	"context"
	"errors"

	"github.com/discoverlab/enginekit/engine"
	"github.com/discoverlab/enginekit/logging"
	"github.com/discoverlab/enginekit/manager"
	"github.com/discoverlab/enginekit/store"
)

// ErrNoActiveSearch is returned by NextPage without a started search.
var ErrNoActiveSearch = errors.New("no active search")

// SearchManager drives active searches: one search at a time, paged through
// the engine boundary, with its position persisted so a restarted app can
// continue where it left off.
type SearchManager struct {
	mgr      *manager.Manager
	store    store.Store
	log      *logging.Logger
	pageSize int
}

// SearchOption configures a SearchManager.
type SearchOption func(*SearchManager)

// WithSearchPageSize sets the page size requested from the engine.
func WithSearchPageSize(n int) SearchOption {
	return func(s *SearchManager) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithSearchLogger sets the logger.
func WithSearchLogger(log *logging.Logger) SearchOption {
	return func(s *SearchManager) {
		s.log = log.WithComponent("search")
	}
}

// NewSearchManager creates a search manager over an engine manager and a store.
func NewSearchManager(mgr *manager.Manager, st store.Store, opts ...SearchOption) *SearchManager {
	s := &SearchManager{
		mgr:      mgr,
		store:    st,
		log:      logging.New().WithComponent("search"),
		pageSize: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a new active search, replacing any previous one, and returns
// its first page.
func (s *SearchManager) Start(ctx context.Context, query string) ([]engine.Document, error) {
	docs, err := s.page(ctx, query, 0, s.pageSize)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSearch(&store.Search{
		Query:    query,
		PageSize: s.pageSize,
		NextPage: 1,
	}); err != nil {
		return nil, err
	}
	return docs, nil
}

// NextPage fetches the next page of the active search and advances the
// persisted position.
func (s *SearchManager) NextPage(ctx context.Context) ([]engine.Document, error) {
	active, err := s.store.ActiveSearch()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoActiveSearch
		}
		return nil, err
	}

	// Continuations page by the size the search was started with, not the
	// size this manager happens to be configured with, so a restored session
	// never skips or repeats results.
	docs, err := s.page(ctx, active.Query, active.NextPage, active.PageSize)
	if err != nil {
		return nil, err
	}

	active.NextPage++
	if err := s.store.SaveSearch(active); err != nil {
		return nil, err
	}
	return docs, nil
}

// Restore returns the persisted search state, if any.
func (s *SearchManager) Restore() (*store.Search, error) {
	active, err := s.store.ActiveSearch()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveSearch
	}
	return active, err
}

// Close ends the active search.
func (s *SearchManager) Close() error {
	return s.store.ClearSearch()
}

func (s *SearchManager) page(ctx context.Context, query string, page, pageSize int) ([]engine.Document, error) {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	req, err := engine.NewSearchRequest(engine.SearchRequest{
		Query:    query,
		PageSize: pageSize,
		Page:     page,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.mgr.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if respErr := resp.Err(); respErr != nil {
		return nil, respErr
	}

	result, err := resp.Search()
	if err != nil {
		return nil, err
	}
	return result.Documents, nil
}
