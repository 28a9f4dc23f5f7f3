// Package worker provides the worker-side facade of the engine boundary.
//
// A Worker decodes inbound envelopes, invokes the registered handler, and
// returns each result through the envelope's embedded reply sender (or the
// main channel when none is present). Envelopes are processed strictly one
// at a time, so handler side effects on engine state are ordered by
// arrival. Handler errors and panics are caught at the boundary, classified,
// and still delivered as responses; nothing crosses the boundary unhandled.
package worker
