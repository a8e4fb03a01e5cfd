// Package redis connects to Redis with retries and exposes a health check.
// notifykit uses it as the transport for push notifications, which are
// appended to a stream consumed by a push gateway.
package redis
