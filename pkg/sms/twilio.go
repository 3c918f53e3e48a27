package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioProvider struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioProvider(cfg Config) (*TwilioProvider, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		return nil, fmt.Errorf("%w: twilio account sid and auth token are required", ErrInvalidConfig)
	}
	from, err := NormalizeNumber(cfg.FromNumber)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return &TwilioProvider{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		}),
		from: from,
	}, nil
}

func (p *TwilioProvider) Name() string { return ProviderTwilio }

// Send is bounded by the client's HTTP timeout; ctx is only checked before
// the request since the SDK call takes none.
func (p *TwilioProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrSendFailed, err)
	}

	from := msg.From
	if from == "" {
		from = p.from
	}
	to, _ := NormalizeNumber(msg.To)

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(msg.Body)

	resp, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return nil, errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		return nil, errors.Join(ErrSendFailed, errors.New(*resp.ErrorMessage))
	}

	var sid string
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	return &Result{Provider: ProviderTwilio, MessageID: sid}, nil
}
