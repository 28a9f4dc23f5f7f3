package channel

import (
	"context"

	"github.com/discoverlab/enginekit/errors"
)

// Packet is one value on the wire between two execution contexts.
//
// An empty Port addresses the main channel; a non-empty Port addresses a
// registered oneshot receive port. Transfer carries a port ref moved
// alongside the payload, for transports that need explicit ownership
// transfer of reply handles.
type Packet struct {
	Port     string `json:"port,omitempty"`
	Transfer string `json:"transfer,omitempty"`
	Payload  []byte `json:"payload,omitempty"`
}

// PortRef is a serializable, transferable handle naming a receive port. A
// worker that receives a PortRef can reconstruct a working Sender from it
// alone; no shared references cross the boundary.
type PortRef struct {
	ID string `json:"id"`
}

// Channel is a single-use value-passing primitive: one send, one receive,
// disposable. The two halves of a oneshot pair each wrap one Channel.
type Channel interface {
	// Send transmits one payload.
	Send(payload []byte) error

	// Receive awaits exactly one payload.
	Receive(ctx context.Context) ([]byte, error)

	// Dispose releases the channel without sending or receiving.
	Dispose() error
}

// Handle is the execution-context handle: the platform-specific wrapper a
// Manager or Worker exclusively owns around the underlying concurrency
// primitive. No other component may touch its raw send/receive.
type Handle interface {
	// Send transmits a payload on the main channel. If transfer is non-nil,
	// the port ref is moved alongside the payload as an explicit side item.
	Send(payload []byte, transfer *PortRef) error

	// Oneshot creates a paired (Sender, Receiver). The Sender's ref is
	// transferable; the Receiver is registered locally.
	Oneshot() (*Sender, *Receiver, error)

	// NewSender reconstructs a Sender from a received port ref. Sending
	// through it delivers to the peer context's registered receiver.
	NewSender(ref *PortRef) *Sender

	// Messages is the stream of inbound main-channel packets (packets not
	// claimed by any registered port).
	Messages() <-chan Packet

	// Errors is the stream of transport-level failures.
	Errors() <-chan error

	// DroppedResponses reports how many packets addressed an unknown port,
	// typically late responses arriving after timeout disposal.
	DroppedResponses() uint64

	// Dispose shuts the handle down. Idempotent.
	Dispose() error
}

// errUsed is the invariant-violation failure for a second use of a oneshot half.
func errUsed(what string) *errors.Error {
	return errors.New(errors.ErrCodeChannelUsed, what+" already used")
}

// errClosed is the failure for operations on a disposed transport.
func errClosed() *errors.Error {
	return errors.New(errors.ErrCodeTransportClosed, "transport closed")
}
