package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridProvider struct {
	client   *sendgrid.Client
	fromName string
	from     string
	replyTo  string
}

func NewSendGridProvider(cfg Config) (*SendGridProvider, error) {
	if cfg.SendGridAPIKey == "" {
		return nil, fmt.Errorf("%w: SendGridAPIKey is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	return &SendGridProvider{
		client:   sendgrid.NewSendClient(cfg.SendGridAPIKey),
		fromName: cfg.SenderName,
		from:     cfg.SenderEmail,
		replyTo:  cfg.ReplyTo,
	}, nil
}

func (p *SendGridProvider) Name() string { return ProviderSendGrid }

func (p *SendGridProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	m := p.build(msg)
	resp, err := p.client.SendWithContext(ctx, m)
	if err != nil {
		return nil, errors.Join(ErrSendFailed, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Join(ErrSendFailed,
			fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body))
	}

	var id string
	if v := resp.Headers["X-Message-Id"]; len(v) > 0 {
		id = v[0]
	}
	return &Result{Provider: ProviderSendGrid, MessageID: id}, nil
}

func (p *SendGridProvider) build(msg Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	if msg.From != "" {
		m.SetFrom(mail.NewEmail("", msg.From))
	} else {
		m.SetFrom(mail.NewEmail(p.fromName, p.from))
	}
	if p.replyTo != "" {
		m.SetReplyTo(mail.NewEmail("", p.replyTo))
	}
	m.Subject = msg.Subject

	pers := mail.NewPersonalization()
	pers.AddTos(mail.NewEmail("", msg.To))
	m.AddPersonalizations(pers)

	// text/plain must precede text/html.
	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Tag != "" {
		m.AddCategories(msg.Tag)
	}
	return m
}
