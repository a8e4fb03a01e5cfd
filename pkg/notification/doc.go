// Package notification holds the data model shared by every part of the dispatch
// engine: the persisted outbox Record, its Status lifecycle, channel kinds,
// priority tiers and locale provenance tags.
//
// The lifecycle is
//
//	pending -> claimed -> sent | failed_retryable | dead
//	failed_retryable -> pending (once next_attempt_at elapses) | dead
//	claimed -> pending (lease expired, record reclaimed)
//
// Stores use CheckTransition before every write so an invalid move surfaces as
// ErrInvalidTransition instead of silently corrupting a record.
package notification
