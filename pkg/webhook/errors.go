package webhook

import "errors"

// Delivery errors are split into two families. Permanent failures will not
// succeed on retry (bad URL, 4xx). Temporary failures may (network, 5xx, 429).
// Callers that own a retry policy branch on IsPermanent.
var (
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrPermanentFailure     = errors.New("permanent webhook failure")
	ErrTemporaryFailure     = errors.New("temporary webhook failure")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrInvalidURL           = errors.New("invalid webhook URL")
	ErrTimeout              = errors.New("webhook request timeout")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
)

// IsPermanent reports whether a delivery error should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}
