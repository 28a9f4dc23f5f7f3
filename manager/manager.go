package manager

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/discoverlab/enginekit/channel"
	"github.com/discoverlab/enginekit/codec"
	"github.com/discoverlab/enginekit/engine"
	"github.com/discoverlab/enginekit/errors"
	"github.com/discoverlab/enginekit/logging"
	"github.com/discoverlab/enginekit/stream"
	"github.com/discoverlab/enginekit/telemetry"
)

// DefaultTimeout bounds a send when the caller does not override it.
const DefaultTimeout = 10 * time.Second

// Manager is the control-side facade of the engine boundary. It owns the
// execution-context handle exclusively, multiplexes concurrent sends over
// it via private oneshot pairs, and republishes every outcome on a
// broadcast observation stream.
type Manager struct {
	handle  channel.Handle
	codec   codec.ManagerCodec
	events  *stream.Broadcast
	log     *logging.Logger
	timeout time.Duration

	disposed    atomic.Bool
	disposeOnce sync.Once
	feedsDone   sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTimeout overrides the default per-send deadline.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) {
		m.log = log.WithComponent("manager")
	}
}

// WithCodec overrides the JSON codec.
func WithCodec(c codec.ManagerCodec) Option {
	return func(m *Manager) {
		m.codec = c
	}
}

// New creates a Manager over an already-spawned handle and starts the two
// passive feeds: unclaimed inbound messages (republished as out-of-band
// events) and transport-level errors (republished as stream errors).
func New(handle channel.Handle, opts ...Option) *Manager {
	m := &Manager{
		handle:  handle,
		codec:   codec.JSON(),
		events:  stream.New(),
		log:     logging.New().WithComponent("manager"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.feedsDone.Add(2)
	go m.messageFeed()
	go m.errorFeed()

	return m
}

// Spawn creates the worker execution context for cfg and a Manager over it.
// The entry function is the worker entrypoint for the memory platform.
func Spawn(cfg channel.Config, entry func(channel.Handle), opts ...Option) (*Manager, error) {
	handle, err := channel.Spawn(cfg, entry)
	if err != nil {
		return nil, err
	}
	return New(handle, opts...), nil
}

// SendOption adjusts one send.
type SendOption func(*sendConfig)

type sendConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the deadline for this send only.
func WithTimeout(d time.Duration) SendOption {
	return func(c *sendConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Send transmits one request and returns its response. Every failure mode
// comes back as a classified error: DISPOSED synchronously after Dispose,
// REQUEST_TIMEOUT when the deadline elapses (the receiver is disposed, a
// late reply is dropped silently), CONVERSION_FAILED for malformed replies.
// Safe for concurrent use; each call owns a private oneshot pair.
func (m *Manager) Send(ctx context.Context, req *engine.Request, opts ...SendOption) (*engine.Response, error) {
	if m.disposed.Load() {
		return nil, errors.New(errors.ErrCodeDisposed, "manager disposed",
			errors.WithRequestID(req.ID.String()),
		)
	}

	cfg := sendConfig{timeout: m.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := telemetry.StartSendSpan(ctx, req)
	defer span.End()

	resp, err := m.send(ctx, req, cfg.timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("engine.response.error", resp.Error != nil))
	return resp, nil
}

func (m *Manager) send(ctx context.Context, req *engine.Request, timeout time.Duration) (*engine.Response, error) {
	sender, receiver, err := m.handle.Oneshot()
	if err != nil {
		return nil, errors.Wrap(err, "create reply channel",
			errors.WithRequestID(req.ID.String()),
		)
	}

	payload, err := m.codec.EncodeRequest(req)
	if err != nil {
		_ = receiver.Dispose()
		return nil, err
	}

	ref, err := sender.Transfer()
	if err != nil {
		_ = receiver.Dispose()
		return nil, errors.Wrap(err, "transfer reply handle",
			errors.WithRequestID(req.ID.String()),
		)
	}

	envelope, err := marshalEnvelope(ref, payload)
	if err != nil {
		_ = receiver.Dispose()
		return nil, err
	}

	// The ref travels twice: inside the envelope for the worker to recover,
	// and as the explicit side item for transports that need ownership
	// transfer of reply handles.
	if err := m.handle.Send(envelope, ref); err != nil {
		_ = receiver.Dispose()
		return nil, errors.Wrap(err, "transmit request",
			errors.WithRequestID(req.ID.String()),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := receiver.Receive(ctx)
	if err != nil {
		_ = receiver.Dispose()
		if errors.Is(err, errors.ErrCodeTimeout) {
			m.log.Debug("request timed out", map[string]interface{}{
				"request_id": req.ID.String(),
				"kind":       req.Kind,
				"timeout":    timeout.String(),
			})
			return nil, errors.New(errors.ErrCodeTimeout, "no response within deadline",
				errors.WithRequestID(req.ID.String()),
				errors.WithMetadata("kind", string(req.Kind)),
				errors.WithMetadata("timeout", timeout.String()),
			)
		}
		return nil, errors.Wrap(err, "await response",
			errors.WithRequestID(req.ID.String()),
		)
	}

	resp, err := m.codec.DecodeResponse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode response",
			errors.WithRequestID(req.ID.String()),
		)
	}

	// Observers see every completed round trip exactly once, in completion
	// order.
	m.events.Publish(stream.Event{Response: resp})
	return resp, nil
}

// Events returns a new subscription on the observation stream, or nil after
// Dispose.
func (m *Manager) Events() *stream.Subscription {
	return m.events.Subscribe()
}

// DroppedResponses reports late replies dropped after timeout disposal.
func (m *Manager) DroppedResponses() uint64 {
	return m.handle.DroppedResponses()
}

// Dispose closes the observation stream, cancels the passive feeds, and
// disposes the execution-context handle. Idempotent; in-flight sends fail
// with a transport classification rather than hanging.
func (m *Manager) Dispose() error {
	m.disposeOnce.Do(func() {
		m.disposed.Store(true)
		_ = m.handle.Dispose()
		m.feedsDone.Wait()
		m.events.Close()
		m.log.Debug("manager disposed", nil)
	})
	return nil
}

// messageFeed republishes inbound main-channel messages unclaimed by any
// pending receiver: worker status notifications and broadcast errors.
func (m *Manager) messageFeed() {
	defer m.feedsDone.Done()
	for p := range m.handle.Messages() {
		resp, err := m.codec.DecodeResponse(p.Payload)
		if err != nil {
			m.events.Publish(stream.Event{Err: err, OutOfBand: true})
			continue
		}
		if respErr := resp.Err(); respErr != nil && resp.Payload == nil {
			m.events.Publish(stream.Event{Err: respErr, Response: resp, OutOfBand: true})
			continue
		}
		m.events.Publish(stream.Event{Response: resp, OutOfBand: true})
	}
}

// errorFeed republishes transport-level errors on the same stream.
func (m *Manager) errorFeed() {
	defer m.feedsDone.Done()
	for err := range m.handle.Errors() {
		m.log.Warn("transport error", map[string]interface{}{"error": err.Error()})
		m.events.Publish(stream.Event{Err: err, OutOfBand: true})
	}
}

// marshalEnvelope builds the wire envelope for one request.
func marshalEnvelope(ref *channel.PortRef, payload []byte) ([]byte, error) {
	data, err := json.Marshal(codec.Envelope{Sender: ref, Payload: payload})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConversion, "encode envelope")
	}
	return data, nil
}
