package channel

import (
	"context"
	"sync"

	"github.com/discoverlab/enginekit/errors"
)

// Sender is the outgoing half of a oneshot pair. It is an affine resource:
// it may be consumed exactly once, either by Send or by Transfer, and a
// second consumption fails with a CHANNEL_USED error. Ownership moves with
// it (manager, then envelope, then worker, then discarded).
type Sender struct {
	mu  sync.Mutex
	ref *PortRef
	ch  Channel // nil once consumed
}

// newSender builds a sender around a send-capable channel and its ref.
func newSender(ref *PortRef, ch Channel) *Sender {
	return &Sender{ref: ref, ch: ch}
}

// Send transmits one payload to the paired Receiver and consumes the sender.
func (s *Sender) Send(payload []byte) error {
	s.mu.Lock()
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	if ch == nil {
		return errUsed("sender")
	}
	return ch.Send(payload)
}

// Transfer moves the transferable ref out of the sender and consumes it.
// The ref travels inside an envelope to the peer context, which
// reconstructs a working Sender from it.
func (s *Sender) Transfer() (*PortRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return nil, errUsed("sender")
	}
	ref := s.ref
	s.ch = nil
	return ref, nil
}

// Ref returns the port ref without consuming the sender. Used for logging;
// delivery paths go through Send or Transfer.
func (s *Sender) Ref() *PortRef {
	return s.ref
}

// Receiver is the incoming half of a oneshot pair: one receive, then the
// port is released. Dispose force-releases it without waiting, which is the
// timeout cleanup path.
type Receiver struct {
	mu sync.Mutex
	ch Channel // nil once consumed or disposed
}

func newReceiver(ch Channel) *Receiver {
	return &Receiver{ch: ch}
}

// Receive awaits exactly one payload from the paired Sender and consumes
// the receiver.
func (r *Receiver) Receive(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	ch := r.ch
	r.ch = nil
	r.mu.Unlock()

	if ch == nil {
		return nil, errUsed("receiver")
	}

	payload, err := ch.Receive(ctx)
	if err != nil {
		// The port is dead either way; release it so a late response is
		// dropped instead of leaking the registration.
		_ = ch.Dispose()
		return nil, err
	}
	_ = ch.Dispose()
	return payload, nil
}

// Dispose releases the receiver's port immediately without waiting.
// Safe to call more than once.
func (r *Receiver) Dispose() error {
	r.mu.Lock()
	ch := r.ch
	r.ch = nil
	r.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Dispose()
}

// receiveErr normalizes a context failure from a blocked receive.
func receiveErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "oneshot receive")
	}
	return errClosed()
}
