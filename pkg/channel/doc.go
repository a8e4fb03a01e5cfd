// Package channel adapts delivery providers to one Sender interface and
// classifies their failures.
//
// Every adapter wraps errors with Transient or Permanent:
//
//	email    Postmark; invalid or inactive recipients are permanent
//	webhook  single POST; 4xx except 408, 425 and 429 is permanent
//	sms      HTTP gateway over the webhook transport, same rules
//	push     XADD to a Redis stream; Redis errors are transient
//
// Router picks the adapter by Message.Channel. A channel with no sender is a
// permanent failure, so misconfigured deployments dead-letter instead of
// retrying forever.
package channel
