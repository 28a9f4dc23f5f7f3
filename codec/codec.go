// Package codec converts between typed requests/responses and the wire
// payloads crossing the execution-context boundary.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/discoverlab/enginekit/channel"
	"github.com/discoverlab/enginekit/engine"
	"github.com/discoverlab/enginekit/errors"
)

// Envelope is the wire wrapper for one request: the transferable reply
// handle (absent when the reply should travel on the main channel) plus the
// encoded request.
type Envelope struct {
	Sender  *channel.PortRef `json:"sender,omitempty"`
	Payload json.RawMessage  `json:"payload"`
}

// ManagerCodec converts on the control side: requests out, responses in.
type ManagerCodec interface {
	EncodeRequest(req *engine.Request) ([]byte, error)
	DecodeResponse(raw []byte) (*engine.Response, error)
}

// WorkerCodec converts on the worker side: envelopes in, responses out.
// RecoverSender is the best-effort partial decode used when DecodeEnvelope
// fails, so a structured error can still reach the original caller.
type WorkerCodec interface {
	DecodeEnvelope(raw []byte) (*Envelope, error)
	RecoverSender(raw []byte) *channel.PortRef
	EncodeResponse(resp *engine.Response) ([]byte, error)
}

// JSON returns the JSON implementation of both directions.
func JSON() *JSONCodec {
	return &JSONCodec{}
}

// JSONCodec implements ManagerCodec and WorkerCodec over JSON. Every decode
// failure, including panics out of malformed input, surfaces as a
// CONVERSION_FAILED error carrying the offending raw payload.
type JSONCodec struct{}

var (
	_ ManagerCodec = (*JSONCodec)(nil)
	_ WorkerCodec  = (*JSONCodec)(nil)
)

// EncodeRequest encodes a request for the envelope payload.
func (c *JSONCodec) EncodeRequest(req *engine.Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConversion, "encode request",
			errors.WithRequestID(req.ID.String()),
		)
	}
	return data, nil
}

// DecodeResponse decodes a reply payload received on a oneshot receiver.
func (c *JSONCodec) DecodeResponse(raw []byte) (resp *engine.Response, err error) {
	defer recoverConversion(raw, "decode response", &err)

	var r engine.Response
	if jsonErr := json.Unmarshal(raw, &r); jsonErr != nil {
		return nil, conversionError(jsonErr, raw, "decode response")
	}
	return &r, nil
}

// DecodeEnvelope decodes an inbound envelope, recovering the embedded
// sender ref.
func (c *JSONCodec) DecodeEnvelope(raw []byte) (env *Envelope, err error) {
	defer recoverConversion(raw, "decode envelope", &err)

	var e Envelope
	if jsonErr := json.Unmarshal(raw, &e); jsonErr != nil {
		return nil, conversionError(jsonErr, raw, "decode envelope")
	}
	if len(e.Payload) == 0 {
		return nil, conversionError(fmt.Errorf("empty payload"), raw, "decode envelope")
	}
	return &e, nil
}

// RecoverSender attempts a partial decode of a malformed envelope to salvage
// a usable reply handle. Returns nil when none can be recovered.
func (c *JSONCodec) RecoverSender(raw []byte) *channel.PortRef {
	defer func() {
		_ = recover()
	}()

	var partial struct {
		Sender *channel.PortRef `json:"sender"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil {
		return nil
	}
	if partial.Sender == nil || partial.Sender.ID == "" {
		return nil
	}
	return partial.Sender
}

// EncodeResponse encodes a reply for delivery through the recovered sender.
func (c *JSONCodec) EncodeResponse(resp *engine.Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConversion, "encode response",
			errors.WithRequestID(resp.RequestID.String()),
		)
	}
	return data, nil
}

// DecodeRequest decodes the request embedded in an envelope payload.
func DecodeRequest(payload json.RawMessage) (*engine.Request, error) {
	var req engine.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, conversionError(err, payload, "decode request")
	}
	return &req, nil
}

func conversionError(cause error, raw []byte, op string) *errors.Error {
	return errors.WrapWithCode(cause, errors.ErrCodeConversion, op,
		errors.WithRawPayload(raw),
	)
}

// recoverConversion folds an unexpected decode panic into the same
// conversion classification as an ordinary decode failure.
func recoverConversion(raw []byte, op string, err *error) {
	if r := recover(); r != nil {
		*err = conversionError(fmt.Errorf("panic: %v", r), raw, op)
	}
}
