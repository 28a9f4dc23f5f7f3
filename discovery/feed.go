package discovery

import (
	"context"

	"github.com/discoverlab/enginekit/engine"
	"github.com/discoverlab/enginekit/logging"
	"github.com/discoverlab/enginekit/manager"
	"github.com/discoverlab/enginekit/store"
)

// FeedManager drives the personalized feed: it requests batches through the
// engine boundary, applies source preferences, and caches results for
// offline display.
type FeedManager struct {
	mgr      *manager.Manager
	store    store.Store
	log      *logging.Logger
	pageSize int
	markets  []engine.Market
}

// FeedOption configures a FeedManager.
type FeedOption func(*FeedManager)

// WithPageSize sets the batch size requested from the engine.
func WithPageSize(n int) FeedOption {
	return func(f *FeedManager) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithMarkets restricts batches to the given markets.
func WithMarkets(markets []engine.Market) FeedOption {
	return func(f *FeedManager) {
		f.markets = markets
	}
}

// WithFeedLogger sets the logger.
func WithFeedLogger(log *logging.Logger) FeedOption {
	return func(f *FeedManager) {
		f.log = log.WithComponent("feed")
	}
}

// NewFeedManager creates a feed manager over an engine manager and a store.
func NewFeedManager(mgr *manager.Manager, st store.Store, opts ...FeedOption) *FeedManager {
	f := &FeedManager{
		mgr:      mgr,
		store:    st,
		log:      logging.New().WithComponent("feed"),
		pageSize: 10,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NextBatch requests the next feed batch, drops documents from excluded
// sources, and caches the rest.
func (f *FeedManager) NextBatch(ctx context.Context) ([]engine.Document, error) {
	req, err := engine.NewFeedRequest(engine.FeedRequest{
		PageSize: f.pageSize,
		Markets:  f.markets,
	})
	if err != nil {
		return nil, err
	}

	resp, err := f.mgr.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if respErr := resp.Err(); respErr != nil {
		return nil, respErr
	}

	feed, err := resp.Feed()
	if err != nil {
		return nil, err
	}

	docs, err := f.filterExcluded(feed.Documents)
	if err != nil {
		return nil, err
	}

	if err := f.store.PutDocuments(docs); err != nil {
		// Cache misses only degrade offline display; the batch is still good.
		f.log.Warn("cache batch failed", map[string]interface{}{"error": err.Error()})
	}
	return docs, nil
}

// React reports a reaction to a document so later batches shift toward (or
// away from) its source.
func (f *FeedManager) React(ctx context.Context, documentID string, reaction engine.Reaction) error {
	req, err := engine.NewInteractionRequest(engine.InteractionRequest{
		DocumentID: documentID,
		Reaction:   reaction,
	})
	if err != nil {
		return err
	}

	resp, err := f.mgr.Send(ctx, req)
	if err != nil {
		return err
	}
	return resp.Err()
}

// TrustSource marks a source trusted.
func (f *FeedManager) TrustSource(source string) error {
	return f.store.SetSourcePreference(source, store.SourceTrusted)
}

// ExcludeSource removes a source from future batches.
func (f *FeedManager) ExcludeSource(source string) error {
	return f.store.SetSourcePreference(source, store.SourceExcluded)
}

// CachedDocuments returns the locally cached feed documents.
func (f *FeedManager) CachedDocuments() ([]engine.Document, error) {
	return f.store.Documents()
}

func (f *FeedManager) filterExcluded(docs []engine.Document) ([]engine.Document, error) {
	prefs, err := f.store.SourcePreferences()
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 {
		return docs, nil
	}
	kept := docs[:0]
	for _, doc := range docs {
		if prefs[doc.Source] == store.SourceExcluded {
			continue
		}
		kept = append(kept, doc)
	}
	return kept, nil
}
