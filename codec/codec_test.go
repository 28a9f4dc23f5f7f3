package codec

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/discoverlab/enginekit/channel"
	"github.com/discoverlab/enginekit/engine"
	"github.com/discoverlab/enginekit/errors"
)

func TestRequestRoundTrip(t *testing.T) {
	c := JSON()

	req, err := engine.NewSearchRequest(engine.SearchRequest{Query: "climate", PageSize: 5})
	if err != nil {
		t.Fatalf("NewSearchRequest: %v", err)
	}

	encoded, err := c.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	decoded, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if decoded.ID != req.ID {
		t.Errorf("ID = %v, want %v", decoded.ID, req.ID)
	}
	if decoded.Kind != engine.KindSearch {
		t.Errorf("Kind = %v", decoded.Kind)
	}

	search, err := decoded.Search()
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if search.Query != "climate" || search.PageSize != 5 {
		t.Errorf("payload = %+v", search)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	c := JSON()

	ref := &channel.PortRef{ID: "port-1"}
	payload := json.RawMessage(`{"kind":"ping"}`)
	data, err := json.Marshal(Envelope{Sender: ref, Payload: payload})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	env, err := c.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Sender == nil || env.Sender.ID != "port-1" {
		t.Errorf("Sender = %+v", env.Sender)
	}
	if string(env.Payload) != string(payload) {
		t.Errorf("Payload = %s", env.Payload)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	c := JSON()

	tests := []struct {
		name string
		raw  []byte
	}{
		{"garbage", []byte("not json at all")},
		{"empty payload", []byte(`{"sender":{"id":"p"}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeEnvelope(tt.raw)
			if !errors.Is(err, errors.ErrCodeConversion) {
				t.Fatalf("err = %v, want CONVERSION_FAILED", err)
			}
			var engErr *errors.Error
			if !stderrors.As(err, &engErr) {
				t.Fatal("not a classified error")
			}
			if string(engErr.RawPayload()) != string(tt.raw) {
				t.Errorf("RawPayload = %q, want %q", engErr.RawPayload(), tt.raw)
			}
		})
	}
}

func TestRecoverSender(t *testing.T) {
	c := JSON()

	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		// The payload is malformed but the sender field still parses.
		{"recoverable", []byte(`{"sender":{"id":"port-9"},"payload":"##"}`), "port-9"},
		{"no sender", []byte(`{"payload":{}}`), ""},
		{"garbage", []byte("@@@@"), ""},
		{"empty sender id", []byte(`{"sender":{"id":""}}`), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := c.RecoverSender(tt.raw)
			if tt.want == "" {
				if ref != nil {
					t.Errorf("RecoverSender = %+v, want nil", ref)
				}
				return
			}
			if ref == nil || ref.ID != tt.want {
				t.Errorf("RecoverSender = %+v, want %q", ref, tt.want)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	c := JSON()

	req, _ := engine.NewFeedRequest(engine.FeedRequest{PageSize: 2})
	resp, err := engine.NewResponse(req, engine.FeedResponse{
		Documents: []engine.Document{{ID: "d1", Title: "One", Score: 0.5}},
	})
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}

	data, err := c.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	decoded, err := c.DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.RequestID != req.ID {
		t.Errorf("RequestID = %v", decoded.RequestID)
	}

	feed, err := decoded.Feed()
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(feed.Documents) != 1 || feed.Documents[0].ID != "d1" {
		t.Errorf("Documents = %+v", feed.Documents)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	c := JSON()

	_, err := c.DecodeResponse([]byte("][")) // malformed on purpose
	if !errors.Is(err, errors.ErrCodeConversion) {
		t.Fatalf("err = %v, want CONVERSION_FAILED", err)
	}
}

func TestErrorResponseCrossesWire(t *testing.T) {
	c := JSON()

	req, _ := engine.NewPingRequest()
	engErr := errors.New(errors.ErrCodeHandler, "engine unavailable",
		errors.WithRequestID(req.ID.String()),
	)
	resp := engine.NewErrorResponse(req.ID, req.Kind, engErr)

	data, err := c.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	decoded, err := c.DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}

	respErr := decoded.Err()
	if respErr == nil {
		t.Fatal("error lost in transit")
	}
	if !errors.Is(respErr, errors.ErrCodeHandler) {
		t.Errorf("err = %v, want HANDLER_FAILED", respErr)
	}
}
