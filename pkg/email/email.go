package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

// Provider delivers one message. Implementations are safe for concurrent use.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (*Result, error)
}

type Message struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"` // provider default when empty
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
	// Tag groups messages in provider analytics.
	Tag string `json:"tag,omitempty"`
}

// Validate checks the fields every provider needs.
func (m Message) Validate() error {
	if !ValidAddress(m.To) {
		return fmt.Errorf("%w: recipient %q is not a valid address", ErrInvalidMessage, m.To)
	}
	if m.From != "" && !ValidAddress(m.From) {
		return fmt.Errorf("%w: sender %q is not a valid address", ErrInvalidMessage, m.From)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.HTML) == "" && strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: html or text body is required", ErrInvalidMessage)
	}
	return nil
}

type Result struct {
	Provider  string `json:"provider"`
	MessageID string `json:"message_id"`
}

// ValidAddress reports whether s is a bare address like "user@example.com".
// Display names ("Jane <jane@example.com>") are rejected.
func ValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderPostmark:
		return NewPostmarkProvider(cfg)
	case ProviderSendGrid:
		return NewSendGridProvider(cfg)
	case ProviderDev, "":
		return NewDevSender(cfg.DevOutputDir), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
