package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type PostmarkProvider struct {
	client  *postmark.Client
	from    string
	replyTo string
}

func NewPostmarkProvider(cfg Config) (*PostmarkProvider, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.ReplyTo != "" && !ValidAddress(cfg.ReplyTo) {
		return nil, fmt.Errorf("%w: ReplyTo must be a valid email address", ErrInvalidConfig)
	}
	return &PostmarkProvider{
		client:  postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:    formatSender(cfg.SenderName, cfg.SenderEmail),
		replyTo: cfg.ReplyTo,
	}, nil
}

func (p *PostmarkProvider) Name() string { return ProviderPostmark }

// Send tracks opens and HTML link clicks only.
func (p *PostmarkProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	from := msg.From
	if from == "" {
		from = p.from
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       from,
		ReplyTo:    p.replyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return nil, errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return nil, errors.Join(ErrSendFailed,
			fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return &Result{Provider: ProviderPostmark, MessageID: resp.MessageID}, nil
}

func formatSender(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
