package sms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
)

// MaxLength is the longest body, in characters, accepted for one message.
const MaxLength = 1600

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (*Result, error)
}

type Message struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

func (m Message) Validate() error {
	if _, err := NormalizeNumber(m.To); err != nil {
		return err
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(m.Body) > MaxLength {
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidMessage, MaxLength)
	}
	return nil
}

type Result struct {
	Provider  string `json:"provider"`
	MessageID string `json:"message_id"`
}

// NormalizeNumber parses an international number ("+" prefix required) and
// returns it in E.164 form.
func NormalizeNumber(num string) (string, error) {
	num = strings.TrimSpace(num)
	if num == "" {
		return "", fmt.Errorf("%w: missing number", ErrInvalidNumber)
	}
	if num[0] != '+' {
		return "", fmt.Errorf("%w: %q must start with +", ErrInvalidNumber, num)
	}
	parsed, err := phonenumbers.Parse(num, "")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, num)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// ValidNumber reports whether NormalizeNumber accepts num.
func ValidNumber(num string) bool {
	_, err := NormalizeNumber(num)
	return err == nil
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func NewProvider(cfg Config, log *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderTwilio:
		return NewTwilioProvider(cfg)
	case ProviderLog, "":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
