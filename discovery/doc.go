// Package discovery provides the business-logic managers above the engine
// boundary: FeedManager for personalized feed batches and SearchManager for
// active searches. They decide what to request; the manager package decides
// how requests cross to the engine; the store package keeps their state.
package discovery
