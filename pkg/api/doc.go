// Package api exposes the notification service over HTTP with chi.
//
// Every response is a JSON Envelope carrying either data or an error with a
// stable code: validation failures answer 422, unknown records 404, records
// under a live delivery lease 409. Infrastructure failures answer 500 with a
// generic message and are logged with the request id.
//
// A send answers 202 when a new record was written and 200 when an earlier
// request with the same idempotency key already created it. Batch items are
// independent; the batch itself answers 200 with per-item results in request
// order.
package api
