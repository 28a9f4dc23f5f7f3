// Package channel provides the transport layer between the two execution
// contexts of the engine boundary: transferable oneshot pairs over a
// platform-selected wire.
//
// # Overview
//
// A Handle wraps one side of the boundary. Three realizations share the
// contract:
//
//   - memory: the worker is a goroutine; packets travel on Go channels
//   - process: the worker is a sandboxed subprocess; packets are JSON
//     frames on its stdio
//   - nats: the worker is a remote peer reached over NATS subjects
//
// Only the port representation and transfer mechanism differ; a factory
// picks the realization from a runtime platform flag.
//
// # Oneshot Pairs
//
// Handle.Oneshot creates a single-use (Sender, Receiver). Both halves are
// affine resources enforced at runtime: one send (or one transfer of the
// sender's port ref across the boundary), one receive, and any second use
// fails with a CHANNEL_USED error. The Receiver can be disposed without
// waiting, which is the timeout cleanup path; responses arriving for a
// disposed port are dropped silently and counted via DroppedResponses.
//
//	sender, receiver, _ := handle.Oneshot()
//	ref, _ := sender.Transfer()              // move the handle into an envelope
//	_ = handle.Send(envelope, ref)           // explicit side-item transfer
//	payload, err := receiver.Receive(ctx)    // exactly one value
//
// The peer reconstructs a working Sender purely from the received ref:
//
//	reply := handle.NewSender(&channel.PortRef{ID: packet.Transfer})
//	_ = reply.Send(response)
package channel
