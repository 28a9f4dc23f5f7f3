package channel

import (
	"github.com/discoverlab/enginekit/errors"
)

// memoryHandle realizes Handle over in-process Go channels. The two
// execution contexts are goroutines in one address space, connected by a
// pair of packet channels; no memory is shared beyond the wire.
type memoryHandle struct {
	*endpoint
}

var _ Handle = (*memoryHandle)(nil)

// SpawnGoroutine creates an in-process worker execution context. The entry
// function runs on its own goroutine and receives the worker-side handle;
// the returned handle is the manager side.
func SpawnGoroutine(entry func(Handle), buffer int) (Handle, error) {
	if entry == nil {
		return nil, errors.New(errors.ErrCodeSpawnFailed, "nil worker entrypoint")
	}

	toWorker := make(chan Packet, defaultBufferSize)
	toManager := make(chan Packet, defaultBufferSize)

	mgr := &memoryHandle{endpoint: newEndpoint(buffer)}
	wrk := &memoryHandle{endpoint: newEndpoint(buffer)}

	mgr.post = postTo(toWorker, mgr.endpoint)
	wrk.post = postTo(toManager, wrk.endpoint)

	go mgr.pump(toManager)
	go wrk.pump(toWorker)
	go entry(wrk)

	return mgr, nil
}

// postTo builds the wire send for one direction. It never blocks past
// disposal.
func postTo(out chan<- Packet, e *endpoint) func(Packet) error {
	return func(p Packet) error {
		select {
		case out <- p:
			return nil
		case <-e.done:
			return errClosed()
		}
	}
}

// pump is the read loop: inbound packets are dispatched until disposal.
func (h *memoryHandle) pump(in <-chan Packet) {
	defer h.finish()
	for {
		select {
		case p := <-in:
			h.dispatch(p)
		case <-h.done:
			return
		}
	}
}

// Dispose shuts the handle down. Idempotent; the peer side stays usable
// until it disposes itself, though sends to this side will no longer be
// claimed.
func (h *memoryHandle) Dispose() error {
	return h.dispose()
}
