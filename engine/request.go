package engine

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/discoverlab/enginekit/errors"
)

// RequestKind discriminates the operations the engine serves.
type RequestKind string

const (
	// KindFeed requests the next batch of personalized feed documents.
	KindFeed RequestKind = "feed"

	// KindSearch requests a page of ranked search results.
	KindSearch RequestKind = "search"

	// KindInteraction reports a user reaction so the engine can adjust
	// its interest model.
	KindInteraction RequestKind = "interaction"

	// KindPing is a liveness round trip.
	KindPing RequestKind = "ping"
)

// Request is one immutable client intent crossing the engine boundary.
type Request struct {
	ID      uuid.UUID       `json:"id"`
	Kind    RequestKind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Market identifies a feed market by language and country.
type Market struct {
	LangCode    string `json:"lang_code"`
	CountryCode string `json:"country_code"`
}

// FeedRequest asks for the next personalized feed batch.
type FeedRequest struct {
	PageSize int      `json:"page_size"`
	Markets  []Market `json:"markets,omitempty"`
}

// SearchRequest asks for one page of ranked results for a query.
type SearchRequest struct {
	Query    string `json:"query"`
	PageSize int    `json:"page_size"`
	Page     int    `json:"page"`
}

// Reaction is a user's response to a document.
type Reaction string

const (
	ReactionPositive Reaction = "positive"
	ReactionNegative Reaction = "negative"
	ReactionNeutral  Reaction = "neutral"
)

// InteractionRequest reports a reaction to a document.
type InteractionRequest struct {
	DocumentID string   `json:"document_id"`
	Reaction   Reaction `json:"reaction"`
}

// newRequest wraps a typed payload into a Request with a fresh ID.
func newRequest(kind RequestKind, payload interface{}) (*Request, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeConversion, "encode request payload")
		}
		raw = data
	}
	return &Request{ID: uuid.New(), Kind: kind, Payload: raw}, nil
}

// NewFeedRequest builds a feed-batch request.
func NewFeedRequest(req FeedRequest) (*Request, error) {
	return newRequest(KindFeed, req)
}

// NewSearchRequest builds a search request.
func NewSearchRequest(req SearchRequest) (*Request, error) {
	return newRequest(KindSearch, req)
}

// NewInteractionRequest builds an interaction report.
func NewInteractionRequest(req InteractionRequest) (*Request, error) {
	return newRequest(KindInteraction, req)
}

// NewPingRequest builds a liveness round trip.
func NewPingRequest() (*Request, error) {
	return newRequest(KindPing, nil)
}

// Feed decodes the payload as a FeedRequest.
func (r *Request) Feed() (*FeedRequest, error) {
	var req FeedRequest
	if err := r.decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Search decodes the payload as a SearchRequest.
func (r *Request) Search() (*SearchRequest, error) {
	var req SearchRequest
	if err := r.decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Interaction decodes the payload as an InteractionRequest.
func (r *Request) Interaction() (*InteractionRequest, error) {
	var req InteractionRequest
	if err := r.decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Request) decode(into interface{}) error {
	if err := json.Unmarshal(r.Payload, into); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeConversion, "decode request payload",
			errors.WithRawPayload(r.Payload),
			errors.WithRequestID(r.ID.String()),
		)
	}
	return nil
}
