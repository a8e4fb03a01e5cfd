package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email configuration")
	ErrInvalidParams     = errors.New("invalid email parameters")
	// ErrRecipientRejected marks failures the provider will repeat for this
	// recipient no matter how often the message is retried.
	ErrRecipientRejected = errors.New("email recipient rejected")
)

// IsPermanent reports whether retrying the send cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRecipientRejected) || errors.Is(err, ErrInvalidParams)
}
