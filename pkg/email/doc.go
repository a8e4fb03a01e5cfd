// Package email sends transactional email through Postmark, or writes it to
// disk in development.
//
//	sender, err := email.NewPostmarkClient(cfg)
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "user@example.com",
//		Subject:  "Welcome",
//		BodyHTML: html,
//		BodyText: text,
//	})
//	if email.IsPermanent(err) {
//		// invalid or inactive recipient, do not retry
//	}
//
// Postmark error codes 300, 402 and 406 map to ErrRecipientRejected; other
// provider and network failures only wrap ErrFailedToSendEmail and are safe
// to retry. Parameter validation failures wrap ErrInvalidParams.
package email
