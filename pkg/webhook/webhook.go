package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userAgent = "notifykit-webhook/1.0"

// Sender posts JSON payloads to HTTP endpoints.
// It makes exactly one attempt per call; retries belong to the caller.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with a pooled HTTP client.
func NewSender() *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewSenderWithClient creates a sender around a custom client.
func NewSenderWithClient(client *http.Client) *Sender {
	if client == nil {
		return NewSender()
	}
	return &Sender{client: client}
}

// Send POSTs payload to webhookURL once.
// The returned error wraps ErrPermanentFailure or ErrTemporaryFailure
// (ErrTimeout counts as temporary) so callers can decide whether to retry.
func (s *Sender) Send(ctx context.Context, webhookURL string, payload []byte, opts ...SendOption) error {
	if err := validateInputs(webhookURL, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
	}

	options := defaultSendOptions()
	for _, opt := range opts {
		opt(options)
	}

	client := s.client
	if options.httpClient != nil {
		client = options.httpClient
	}

	result := s.attempt(ctx, client, webhookURL, payload, options)
	if options.onDelivery != nil {
		options.onDelivery(result)
	}
	return result.Error
}

func validateInputs(webhookURL string, payload []byte) error {
	if webhookURL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	// Only http(s); anything else is an SSRF vector.
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	return nil
}

func (s *Sender) attempt(ctx context.Context, client *http.Client, webhookURL string, payload []byte, options *sendOptions) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{}

	reqCtx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		result.Duration = time.Since(start)
		result.Error = fmt.Errorf("%w: failed to create request: %w", ErrPermanentFailure, err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range options.headers {
		req.Header.Set(k, v)
	}

	id := options.deliveryID
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set(HeaderID, id)

	if options.signatureSecret != "" {
		sig, err := SignPayload(options.signatureSecret, id, payload)
		if err != nil {
			result.Duration = time.Since(start)
			result.Error = fmt.Errorf("%w: %w", ErrPermanentFailure, err)
			return result
		}
		for k, v := range sig.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			result.Error = fmt.Errorf("%w: %w: %w", ErrTemporaryFailure, ErrTimeout, err)
			return result
		}
		result.Error = fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return result
	}

	msg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	if len(body) > 0 {
		bodyStr := strings.ReplaceAll(string(body), "\n", " ")
		if len(bodyStr) > 200 {
			bodyStr = bodyStr[:200] + "..."
		}
		msg += ": " + bodyStr
	}

	if IsPermanentStatus(resp.StatusCode) {
		result.Error = fmt.Errorf("%w: %s", ErrPermanentFailure, msg)
	} else {
		result.Error = fmt.Errorf("%w: %s", ErrTemporaryFailure, msg)
	}
	return result
}

// IsPermanentStatus reports whether an HTTP status will not change on retry.
// 4xx is permanent except 408, 425 and 429. Everything else is temporary.
func IsPermanentStatus(statusCode int) bool {
	if statusCode < 400 || statusCode >= 500 {
		return false
	}
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}
