// Package store provides the embedded persistence layer the discovery
// managers use for cached documents, active-search state, and source
// preferences.
//
// # Available Implementations
//
//   - BoltStore: durable storage on an embedded bbolt database file
//   - MemoryStore: in-memory implementation for testing and ephemeral use
//
// The request/response protocol itself never touches the store; it only
// carries the domain objects the managers persist.
package store
