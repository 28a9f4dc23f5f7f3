// Package engine defines the domain model crossing the engine boundary:
// typed requests (feed batches, search pages, interaction reports), their
// responses, and the Ranker interface fronting the native ranking/embedding
// engine.
//
// The heavy engine itself is an external collaborator reached across a
// foreign-function boundary; LocalRanker is an in-process stand-in with the
// same statefulness so the protocol and the managers above it can run and
// be tested without native code.
package engine
