package engine

import (
	"context"

	"github.com/discoverlab/enginekit/errors"
)

// Handler processes one decoded request and produces its reply.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// NewHandler builds the worker handler dispatching request kinds to the
// ranker. Returned errors are classified by the worker boundary; the
// handler itself only needs to produce them.
func NewHandler(ranker Ranker) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		switch req.Kind {
		case KindFeed:
			feedReq, err := req.Feed()
			if err != nil {
				return nil, err
			}
			docs, err := ranker.FeedBatch(ctx, feedReq)
			if err != nil {
				return nil, err
			}
			return NewResponse(req, FeedResponse{Documents: docs})

		case KindSearch:
			searchReq, err := req.Search()
			if err != nil {
				return nil, err
			}
			docs, err := ranker.Search(ctx, searchReq)
			if err != nil {
				return nil, err
			}
			return NewResponse(req, SearchResponse{Documents: docs})

		case KindInteraction:
			interaction, err := req.Interaction()
			if err != nil {
				return nil, err
			}
			if err := ranker.Interact(ctx, interaction); err != nil {
				return nil, err
			}
			return NewResponse(req, nil)

		case KindPing:
			return NewResponse(req, nil)

		default:
			return nil, errors.Newf(errors.ErrCodeHandler, "unknown request kind %q", req.Kind)
		}
	}
}
