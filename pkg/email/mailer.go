package email

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/validator"
)

// EmailSender sends one email.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams describes an outgoing email.
// At least one of BodyHTML and BodyText is required.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html,omitempty"`
	BodyText string `json:"body_text,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// Validate checks the recipient, subject and body.
func (p SendEmailParams) Validate() error {
	err := validator.Apply(
		validator.RequiredString("send_to", p.SendTo),
		validator.ValidEmail("send_to", p.SendTo),
		validator.RequiredString("subject", p.Subject),
		validator.Rule{
			Check: func() bool { return p.BodyHTML != "" || p.BodyText != "" },
			Error: validator.ValidationError{Field: "body", Message: "html or text body is required"},
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}
