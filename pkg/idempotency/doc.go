// Package idempotency deduplicates notification requests by (type, key).
//
// The guard never reads before writing. The uniqueness constraint on
// (type, idempotency_key) in the store is the only concurrency control:
// whichever caller inserts first owns the key and everybody else gets the
// stored record back.
package idempotency
