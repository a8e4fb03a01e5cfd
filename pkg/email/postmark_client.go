package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/notifykit/pkg/validator"
)

// Postmark API error codes that will not change on retry.
// https://postmarkapp.com/developer/api/overview#error-codes
const (
	postmarkInvalidEmailRequest = 300
	postmarkInactiveRecipient   = 406
	postmarkInvalidJSON         = 402
)

type postmarkClient struct {
	client *postmark.Client
	config Config
}

// NewPostmarkClient creates a Postmark-backed sender.
func NewPostmarkClient(cfg Config) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if err := validator.Apply(
		validator.ValidEmail("SenderEmail", cfg.SenderEmail),
		validator.ValidEmail("SupportEmail", cfg.SupportEmail),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

// MustNewPostmarkClient is NewPostmarkClient that panics on invalid config.
func MustNewPostmarkClient(cfg Config) EmailSender {
	client, err := NewPostmarkClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// SendEmail sends through Postmark's transactional API.
// Replies go to the support address.
func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:       c.config.SenderEmail,
		ReplyTo:    c.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TextBody:   params.BodyText,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if resp.ErrorCode > 0 {
		return ClassifyPostmarkError(int64(resp.ErrorCode), resp.Message)
	}
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

// ClassifyPostmarkError maps a Postmark API error code to a sentinel.
// Invalid or inactive recipients are permanent; everything else
// (rate limits, server errors, account problems) is worth retrying.
func ClassifyPostmarkError(code int64, message string) error {
	detail := fmt.Errorf("postmark error %d: %s", code, message)
	switch code {
	case postmarkInvalidEmailRequest, postmarkInactiveRecipient, postmarkInvalidJSON:
		return errors.Join(ErrFailedToSendEmail, ErrRecipientRejected, detail)
	default:
		return errors.Join(ErrFailedToSendEmail, detail)
	}
}
