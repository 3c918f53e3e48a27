// Package email sends transactional email through interchangeable providers.
//
// Every provider implements Provider and returns the provider-assigned
// message id on success. PostmarkProvider and SendGridProvider talk to the
// hosted APIs; DevSender writes messages to disk for local development.
// NewProvider picks one from Config:
//
//	p, err := email.NewProvider(cfg)
//	res, err := p.Send(ctx, email.Message{
//		To:      "user@example.com",
//		Subject: "Welcome",
//		HTML:    html,
//		Text:    text,
//	})
//
// Errors wrap ErrInvalidConfig, ErrInvalidMessage or ErrSendFailed.
package email
