package webhook

import (
	"net/http"
	"time"
)

// DeliveryResult describes a single delivery attempt.
type DeliveryResult struct {
	StatusCode int
	Duration   time.Duration
	Error      error
}

// Success reports whether the endpoint answered with a 2xx status.
func (r DeliveryResult) Success() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// DeliveryHook is called after every attempt, successful or not.
type DeliveryHook func(result DeliveryResult)

type sendOptions struct {
	timeout    time.Duration
	headers    map[string]string
	httpClient *http.Client

	signatureSecret string
	deliveryID      string

	onDelivery DeliveryHook
}

func defaultSendOptions() *sendOptions {
	return &sendOptions{
		timeout: 10 * time.Second,
		headers: make(map[string]string),
	}
}

// SendOption configures a single Send call.
type SendOption func(*sendOptions)

// WithTimeout sets the request timeout. Default is 10 seconds.
func WithTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithHeader adds a custom header. Content-Type and User-Agent are always set.
func WithHeader(key, value string) SendOption {
	return func(o *sendOptions) {
		if key != "" && value != "" {
			o.headers[key] = value
		}
	}
}

// WithHeaders adds multiple custom headers.
func WithHeaders(headers map[string]string) SendOption {
	return func(o *sendOptions) {
		for k, v := range headers {
			if k != "" && v != "" {
				o.headers[k] = v
			}
		}
	}
}

// WithSignature enables HMAC-SHA256 signing with the given secret.
func WithSignature(secret string) SendOption {
	return func(o *sendOptions) {
		o.signatureSecret = secret
	}
}

// WithDeliveryID sets the X-Webhook-ID header.
// Pass the notification record ID so receivers can drop redeliveries of the
// same record. A random ID is generated when unset.
func WithDeliveryID(id string) SendOption {
	return func(o *sendOptions) {
		o.deliveryID = id
	}
}

// WithHTTPClient overrides the sender's client for this call.
func WithHTTPClient(client *http.Client) SendOption {
	return func(o *sendOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithOnDelivery sets a callback invoked after the attempt.
func WithOnDelivery(hook DeliveryHook) SendOption {
	return func(o *sendOptions) {
		o.onDelivery = hook
	}
}
