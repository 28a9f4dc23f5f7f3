// Package manager provides the control-side facade of the engine boundary.
//
// A Manager spawns (or dials) the worker execution context, multiplexes
// concurrent sends over its single handle via per-call oneshot pairs, races
// each reply against a deadline, normalizes every failure into a classified
// error, and republishes every completed round trip on a broadcast
// observation stream alongside worker notifications and transport errors.
package manager
