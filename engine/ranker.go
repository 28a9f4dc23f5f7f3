package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Ranker is the native ranking/embedding engine the worker handler fronts.
// Real deployments put the foreign-function engine behind this interface;
// LocalRanker is a small in-process reference so the module runs end to end
// without native code.
type Ranker interface {
	// FeedBatch returns the next batch of personalized documents.
	FeedBatch(ctx context.Context, req *FeedRequest) ([]Document, error)

	// Search returns one ranked page of results for a query.
	Search(ctx context.Context, req *SearchRequest) ([]Document, error)

	// Interact folds a user reaction into the interest model.
	Interact(ctx context.Context, req *InteractionRequest) error

	// Close releases engine resources.
	Close() error
}

// LocalRanker is an in-process Ranker over a seeded corpus. Search runs
// against a memory-only Bleve index (BM25); feed ranking is recency biased
// by per-source weights learned from reactions. Stateful like the real
// engine: reactions shift later batches.
type LocalRanker struct {
	mu      sync.Mutex
	corpus  []Document
	byID    map[string]Document
	index   bleve.Index
	weights map[string]float64 // source -> learned bias
	served  map[string]bool    // document ID -> already in a feed batch
}

var _ Ranker = (*LocalRanker)(nil)

// indexedDocument is the shape stored in the Bleve index. Hits are hydrated
// back into full Documents from the corpus by ID.
type indexedDocument struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// NewLocalRanker creates a ranker over the given corpus, indexing every
// document for full-text search.
func NewLocalRanker(corpus []Document) (*LocalRanker, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}

	byID := make(map[string]Document, len(corpus))
	batch := index.NewBatch()
	for _, doc := range corpus {
		byID[doc.ID] = doc
		if err := batch.Index(doc.ID, indexedDocument{
			Title:   doc.Title,
			Snippet: doc.Snippet,
			Source:  doc.Source,
		}); err != nil {
			index.Close()
			return nil, fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("index corpus: %w", err)
	}

	return &LocalRanker{
		corpus:  append([]Document(nil), corpus...),
		byID:    byID,
		index:   index,
		weights: make(map[string]float64),
		served:  make(map[string]bool),
	}, nil
}

// buildIndexMapping creates the Bleve index mapping: analyzed text for title
// and snippet, exact-match source.
func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("snippet", textFieldMapping)
	docMapping.AddFieldMappingsAt("source", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// FeedBatch returns up to PageSize unseen documents, best scored first.
func (r *LocalRanker) FeedBatch(ctx context.Context, req *FeedRequest) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	var candidates []Document
	for _, doc := range r.corpus {
		if r.served[doc.ID] {
			continue
		}
		if !marketMatch(doc.Market, req.Markets) {
			continue
		}
		doc.Score = r.feedScore(doc)
		candidates = append(candidates, doc)
	}

	sortByScore(candidates)
	if len(candidates) > pageSize {
		candidates = candidates[:pageSize]
	}
	for _, doc := range candidates {
		r.served[doc.ID] = true
	}
	return candidates, nil
}

// Search runs the query against the index and returns one page of hits,
// best match first. Pages outside the result set, including negative page
// numbers arriving over the wire, are empty.
func (r *LocalRanker) Search(ctx context.Context, req *SearchRequest) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if req.Page < 0 {
		return nil, nil
	}

	var q query.Query
	if strings.TrimSpace(req.Query) == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		q = bleve.NewMatchQuery(req.Query)
	}

	searchReq := bleve.NewSearchRequest(q)
	searchReq.Size = pageSize
	searchReq.From = req.Page * pageSize

	result, err := r.index.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", req.Query, err)
	}

	var hits []Document
	for _, hit := range result.Hits {
		doc, ok := r.byID[hit.ID]
		if !ok {
			continue
		}
		doc.Score = hit.Score
		hits = append(hits, doc)
	}
	return hits, nil
}

// Interact shifts the source weight for the reacted document.
func (r *LocalRanker) Interact(ctx context.Context, req *InteractionRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range r.corpus {
		if doc.ID != req.DocumentID {
			continue
		}
		switch req.Reaction {
		case ReactionPositive:
			r.weights[doc.Source] += 1
		case ReactionNegative:
			r.weights[doc.Source] -= 1
		}
		return nil
	}
	return nil // unknown documents are ignored, matching engine behavior
}

// Close releases the search index.
func (r *LocalRanker) Close() error {
	return r.index.Close()
}

// feedScore combines learned source bias and recency. Callers hold r.mu.
func (r *LocalRanker) feedScore(doc Document) float64 {
	score := r.weights[doc.Source]
	if !doc.PublishedAt.IsZero() {
		age := time.Since(doc.PublishedAt)
		if age < 24*time.Hour {
			score += 1
		}
	}
	return score
}

func marketMatch(m Market, markets []Market) bool {
	if len(markets) == 0 {
		return true
	}
	for _, want := range markets {
		if m == want {
			return true
		}
	}
	return false
}

func sortByScore(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score > docs[j].Score
	})
}
