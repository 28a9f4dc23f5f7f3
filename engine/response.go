package engine

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/discoverlab/enginekit/errors"
)

// Response is the typed reply to exactly one Request. Either Payload holds
// the successful result or Error holds the classified failure; never both.
type Response struct {
	RequestID uuid.UUID       `json:"request_id"`
	Kind      RequestKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *errors.Error   `json:"error,omitempty"`
}

// Document is one ranked content item returned by the engine.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	Market      Market    `json:"market,omitempty"`
	Score       float64   `json:"score"`
	Embedding   []float32 `json:"embedding,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// FeedResponse carries one feed batch.
type FeedResponse struct {
	Documents []Document `json:"documents"`
}

// SearchResponse carries one page of search results.
type SearchResponse struct {
	Documents []Document `json:"documents"`
}

// NewResponse wraps a typed payload into the reply for req.
func NewResponse(req *Request, payload interface{}) (*Response, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeConversion, "encode response payload",
				errors.WithRequestID(req.ID.String()),
			)
		}
		raw = data
	}
	return &Response{RequestID: req.ID, Kind: req.Kind, Payload: raw}, nil
}

// NewErrorResponse wraps a classified failure into a reply. The failure
// still answers the original request, so the caller's receiver resolves.
func NewErrorResponse(requestID uuid.UUID, kind RequestKind, engErr *errors.Error) *Response {
	return &Response{RequestID: requestID, Kind: kind, Error: engErr}
}

// Err returns the classified failure, or nil for a successful response.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// Feed decodes the payload as a FeedResponse.
func (r *Response) Feed() (*FeedResponse, error) {
	var resp FeedResponse
	if err := r.decodePayload(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search decodes the payload as a SearchResponse.
func (r *Response) Search() (*SearchResponse, error) {
	var resp SearchResponse
	if err := r.decodePayload(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *Response) decodePayload(into interface{}) error {
	if r.Error != nil {
		return r.Error
	}
	if err := json.Unmarshal(r.Payload, into); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeConversion, "decode response payload",
			errors.WithRawPayload(r.Payload),
			errors.WithRequestID(r.RequestID.String()),
		)
	}
	return nil
}
