package channel

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/render"
)

// EmailSender delivers through an email.EmailSender (Postmark or the dev sender).
type EmailSender struct {
	mailer email.EmailSender
	layout render.Layout
}

// EmailOption configures an EmailSender.
type EmailOption func(*EmailSender)

// WithEmailLayout wraps every non-empty HTML body in l before sending.
// Other channels never see the layout.
func WithEmailLayout(l render.Layout) EmailOption {
	return func(s *EmailSender) {
		s.layout = l
	}
}

func NewEmailSender(mailer email.EmailSender, opts ...EmailOption) *EmailSender {
	s := &EmailSender{mailer: mailer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	html := msg.Content.HTML
	if html != "" && s.layout != nil {
		wrapped, err := render.ToString(ctx, s.layout(msg.Content.Subject, templ.Raw(html)))
		if err != nil {
			return Permanent(fmt.Errorf("email layout: %w", err))
		}
		html = wrapped
	}

	err := s.mailer.SendEmail(ctx, email.SendEmailParams{
		SendTo:   msg.Recipient,
		Subject:  msg.Content.Subject,
		BodyHTML: html,
		BodyText: msg.Content.Text,
		Tag:      msg.Type,
	})
	switch {
	case err == nil:
		return nil
	case email.IsPermanent(err):
		return Permanent(err)
	default:
		return Transient(err)
	}
}
