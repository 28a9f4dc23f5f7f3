package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/discoverlab/enginekit/channel"
	"github.com/discoverlab/enginekit/codec"
	"github.com/discoverlab/enginekit/engine"
	"github.com/discoverlab/enginekit/errors"
	"github.com/discoverlab/enginekit/logging"
	"github.com/discoverlab/enginekit/telemetry"
)

// Worker is the worker-side facade of the engine boundary. It owns its
// execution-context handle exclusively and processes inbound envelopes
// strictly one at a time: the next envelope is not touched until the
// previous handler invocation has fully completed.
type Worker struct {
	handle  channel.Handle
	codec   codec.WorkerCodec
	handler engine.Handler
	log     *logging.Logger

	statusInterval time.Duration

	disposed    atomic.Bool
	disposeOnce sync.Once
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(w *Worker) {
		w.log = log.WithComponent("worker")
	}
}

// WithCodec overrides the JSON codec.
func WithCodec(c codec.WorkerCodec) Option {
	return func(w *Worker) {
		w.codec = c
	}
}

// WithStatusInterval enables periodic status notifications on the main
// channel; the manager republishes them as out-of-band events.
func WithStatusInterval(d time.Duration) Option {
	return func(w *Worker) {
		w.statusInterval = d
	}
}

// New creates a Worker over an already-obtained handle.
func New(handle channel.Handle, handler engine.Handler, opts ...Option) *Worker {
	w := &Worker{
		handle:  handle,
		codec:   codec.JSON(),
		handler: handler,
		log:     logging.New().WithComponent("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes inbound envelopes until the context is canceled or the
// handle's inbound stream closes. Handler invocations for distinct
// requests are strictly ordered by arrival.
func (w *Worker) Run(ctx context.Context) error {
	var stopStatus func()
	if w.statusInterval > 0 {
		stopStatus = w.startStatus(ctx)
		defer stopStatus()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-w.handle.Messages():
			if !ok {
				return nil
			}
			w.process(ctx, p)
		}
	}
}

// process handles exactly one inbound packet, synchronously.
func (w *Worker) process(ctx context.Context, p channel.Packet) {
	env, err := w.codec.DecodeEnvelope(p.Payload)
	if err != nil {
		w.routeDecodeFailure(p, err)
		return
	}

	reply := env.Sender
	if reply == nil && p.Transfer != "" {
		reply = &channel.PortRef{ID: p.Transfer}
	}

	req, err := codec.DecodeRequest(env.Payload)
	if err != nil {
		w.deliverError(reply, uuid.Nil, "", errors.Wrap(err, "decode request"))
		return
	}

	resp := w.invoke(ctx, req)
	w.deliver(reply, resp)
}

// invoke runs the handler for one request, classifying every failure mode
// into a response. A handler failure never crosses the boundary unhandled.
func (w *Worker) invoke(ctx context.Context, req *engine.Request) (resp *engine.Response) {
	ctx, span := telemetry.StartHandleSpan(ctx, req)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			engErr := errors.Newf(errors.ErrCodeHandler, "handler panic: %v", r)
			span.RecordError(engErr)
			span.SetStatus(codes.Error, engErr.Error())
			resp = engine.NewErrorResponse(req.ID, req.Kind, engErr)
		}
	}()

	resp, err := w.handler(ctx, req)
	if err != nil {
		var classified *errors.Error
		if errors.AsEngineError(err) != nil {
			classified = errors.Wrap(err, "handler failed", errors.WithRequestID(req.ID.String()))
		} else {
			classified = errors.WrapWithCode(err, errors.ErrCodeHandler, "handler failed",
				errors.WithRequestID(req.ID.String()),
			)
		}
		span.RecordError(classified)
		span.SetStatus(codes.Error, classified.Error())
		return engine.NewErrorResponse(req.ID, req.Kind, classified)
	}
	if resp == nil {
		return engine.NewErrorResponse(req.ID, req.Kind,
			errors.New(errors.ErrCodeHandler, "handler returned no response",
				errors.WithRequestID(req.ID.String()),
			))
	}
	return resp
}

// routeDecodeFailure reports a malformed envelope. A best-effort partial
// decode may still recover a usable sender, in which case the structured
// error reaches the original caller; otherwise it goes out on the main
// channel for the manager to broadcast.
func (w *Worker) routeDecodeFailure(p channel.Packet, decodeErr error) {
	reply := w.codec.RecoverSender(p.Payload)
	if reply == nil && p.Transfer != "" {
		reply = &channel.PortRef{ID: p.Transfer}
	}
	w.log.Warn("malformed envelope", map[string]interface{}{
		"error":       decodeErr.Error(),
		"recoverable": reply != nil,
	})
	w.deliverError(reply, uuid.Nil, "", errors.Wrap(decodeErr, "process envelope"))
}

// deliver sends a response through the reply sender when present, else
// over the main channel.
func (w *Worker) deliver(reply *channel.PortRef, resp *engine.Response) {
	data, err := w.codec.EncodeResponse(resp)
	if err != nil {
		// The original response cannot be encoded; fall back to a bare
		// classified error so the caller's receiver still resolves.
		fallback := engine.NewErrorResponse(resp.RequestID, resp.Kind, errors.Wrap(err, "encode response"))
		if data, err = w.codec.EncodeResponse(fallback); err != nil {
			w.log.Error("response unencodable", map[string]interface{}{"error": err.Error()})
			return
		}
	}

	if reply != nil {
		if err := w.handle.NewSender(reply).Send(data); err != nil {
			w.log.Debug("reply dropped", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	if err := w.handle.Send(data, nil); err != nil {
		w.log.Debug("main-channel reply dropped", map[string]interface{}{"error": err.Error()})
	}
}

func (w *Worker) deliverError(reply *channel.PortRef, requestID uuid.UUID, kind engine.RequestKind, engErr *errors.Error) {
	w.deliver(reply, engine.NewErrorResponse(requestID, kind, engErr))
}

// startStatus emits periodic liveness notifications on the main channel.
func (w *Worker) startStatus(ctx context.Context) func() {
	ticker := time.NewTicker(w.statusInterval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				w.sendStatus()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (w *Worker) sendStatus() {
	resp, err := engine.NewResponse(&engine.Request{ID: uuid.New(), Kind: statusKind}, statusPayload{
		At: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	data, err := w.codec.EncodeResponse(resp)
	if err != nil {
		return
	}
	_ = w.handle.Send(data, nil)
}

const statusKind engine.RequestKind = "status"

type statusPayload struct {
	At time.Time `json:"at"`
}

// Dispose cancels the inbound subscription and disposes the handle.
// Idempotent; an in-flight handler invocation runs to completion.
func (w *Worker) Dispose() error {
	w.disposeOnce.Do(func() {
		w.disposed.Store(true)
		_ = w.handle.Dispose()
	})
	return nil
}

// Serve is a convenience for worker mains: obtain the inherited handle for
// cfg, run a Worker with the handler until ctx ends, then dispose.
func Serve(ctx context.Context, cfg channel.Config, handler engine.Handler, opts ...Option) error {
	handle, err := channel.Inherit(cfg)
	if err != nil {
		return err
	}
	w := New(handle, handler, opts...)
	defer w.Dispose()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
