package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/discoverlab/enginekit/errors"
)

// endpoint is the platform-independent core of a Handle: a table of
// registered receive ports plus the main-channel and error streams. Each
// platform realization supplies the wire (post function and a read loop
// feeding dispatch) and shares everything else.
type endpoint struct {
	post func(Packet) error

	mu    sync.Mutex
	ports map[string]chan []byte

	msgs chan Packet
	errs chan error

	dropped atomic.Uint64
	closed  atomic.Bool
	done    chan struct{}

	disposeOnce sync.Once
	onDispose   func()
}

func newEndpoint(buffer int) *endpoint {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &endpoint{
		ports: make(map[string]chan []byte),
		msgs:  make(chan Packet, buffer),
		errs:  make(chan error, 16),
		done:  make(chan struct{}),
	}
}

const defaultBufferSize = 64

// Send transmits a payload on the main channel, moving the transfer ref
// alongside it when present.
func (e *endpoint) Send(payload []byte, transfer *PortRef) error {
	if e.closed.Load() {
		return errors.New(errors.ErrCodeDisposed, "handle disposed")
	}
	p := Packet{Payload: payload}
	if transfer != nil {
		p.Transfer = transfer.ID
	}
	return e.post(p)
}

// Oneshot creates a paired (Sender, Receiver) backed by a fresh local port.
func (e *endpoint) Oneshot() (*Sender, *Receiver, error) {
	if e.closed.Load() {
		return nil, nil, errors.New(errors.ErrCodeDisposed, "handle disposed")
	}

	id := uuid.NewString()
	ch := make(chan []byte, 1)

	e.mu.Lock()
	e.ports[id] = ch
	e.mu.Unlock()

	ref := &PortRef{ID: id}
	s := newSender(ref, &localPort{e: e, id: id})
	r := newReceiver(&receivePort{e: e, id: id, ch: ch})
	return s, r, nil
}

// NewSender reconstructs a Sender from a ref received from the peer context.
func (e *endpoint) NewSender(ref *PortRef) *Sender {
	return newSender(ref, &remotePort{e: e, id: ref.ID})
}

// Messages returns the inbound main-channel stream.
func (e *endpoint) Messages() <-chan Packet {
	return e.msgs
}

// Errors returns the transport-level error stream.
func (e *endpoint) Errors() <-chan error {
	return e.errs
}

// DroppedResponses reports packets that addressed an unknown port.
func (e *endpoint) DroppedResponses() uint64 {
	return e.dropped.Load()
}

// dispatch routes one inbound packet: port packets to their registered
// receiver, the rest to the main-channel stream. A packet for an unknown
// port is a late response whose receiver was already disposed; it is
// dropped and counted.
func (e *endpoint) dispatch(p Packet) {
	if p.Port != "" {
		if !e.deliver(p.Port, p.Payload) {
			e.dropped.Add(1)
		}
		return
	}
	select {
	case e.msgs <- p:
	case <-e.done:
	}
}

// deliver hands a payload to a registered port and releases the
// registration. The port buffer holds exactly one value.
func (e *endpoint) deliver(id string, payload []byte) bool {
	e.mu.Lock()
	ch, ok := e.ports[id]
	if ok {
		delete(e.ports, id)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}
	ch <- payload
	return true
}

// release drops a port registration without delivering.
func (e *endpoint) release(id string) {
	e.mu.Lock()
	delete(e.ports, id)
	e.mu.Unlock()
}

// reportErr publishes a transport-level error without blocking.
func (e *endpoint) reportErr(err error) {
	select {
	case e.errs <- err:
	default:
	}
}

// dispose marks the endpoint closed and runs the platform teardown once.
func (e *endpoint) dispose() error {
	e.disposeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		if e.onDispose != nil {
			e.onDispose()
		}
	})
	return nil
}

// finish closes the outbound streams. Called by the platform read loop
// after it stops, so nothing can be mid-send on msgs.
func (e *endpoint) finish() {
	close(e.msgs)
	close(e.errs)
}

// localPort is the send side of a oneshot pair while it remains in the
// creating context: delivery goes straight to the local port table.
type localPort struct {
	e  *endpoint
	id string
}

func (p *localPort) Send(payload []byte) error {
	if !p.e.deliver(p.id, payload) {
		return errors.New(errors.ErrCodePortUnknown, "port released")
	}
	return nil
}

func (p *localPort) Receive(ctx context.Context) ([]byte, error) {
	return nil, errors.New(errors.ErrCodeInternal, "send-only channel")
}

func (p *localPort) Dispose() error {
	p.e.release(p.id)
	return nil
}

// remotePort is a reconstructed send half on the far side of the boundary:
// delivery crosses the wire addressed to the original port.
type remotePort struct {
	e  *endpoint
	id string
}

func (p *remotePort) Send(payload []byte) error {
	return p.e.post(Packet{Port: p.id, Payload: payload})
}

func (p *remotePort) Receive(ctx context.Context) ([]byte, error) {
	return nil, errors.New(errors.ErrCodeInternal, "send-only channel")
}

func (p *remotePort) Dispose() error {
	return nil
}

// receivePort is the receive side of a oneshot pair: one buffered value
// from the port table.
type receivePort struct {
	e  *endpoint
	id string
	ch <-chan []byte
}

func (p *receivePort) Send(payload []byte) error {
	return errors.New(errors.ErrCodeInternal, "receive-only channel")
}

func (p *receivePort) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-p.ch:
		return payload, nil
	case <-ctx.Done():
		return nil, receiveErr(ctx)
	case <-p.e.done:
		return nil, errClosed()
	}
}

func (p *receivePort) Dispose() error {
	p.e.release(p.id)
	return nil
}
