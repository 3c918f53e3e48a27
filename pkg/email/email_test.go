package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

func TestValidAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.io", true},
		{"", false},
		{"   ", false},
		{"invalid-email", false},
		{"user@", false},
		{"@example.com", false},
		{"user@localhost", false},
		{"Jane <jane@example.com>", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, email.ValidAddress(tt.in))
		})
	}
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	valid := email.Message{To: "user@example.com", Subject: "Hi", Text: "body"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(m *email.Message)
	}{
		{"bad recipient", func(m *email.Message) { m.To = "nope" }},
		{"bad sender", func(m *email.Message) { m.From = "nope" }},
		{"no subject", func(m *email.Message) { m.Subject = " " }},
		{"no body", func(m *email.Message) { m.Text = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := valid
			tt.mutate(&m)
			assert.ErrorIs(t, m.Validate(), email.ErrInvalidMessage)
		})
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      email.Config
		wantName string
		wantErr  error
	}{
		{"dev by default", email.Config{DevOutputDir: t.TempDir()}, email.ProviderDev, nil},
		{"postmark", email.Config{Provider: "postmark", PostmarkServerToken: "tok", SenderEmail: "noreply@example.com"}, email.ProviderPostmark, nil},
		{"sendgrid", email.Config{Provider: "SendGrid", SendGridAPIKey: "key", SenderEmail: "noreply@example.com"}, email.ProviderSendGrid, nil},
		{"postmark without token", email.Config{Provider: "postmark", SenderEmail: "noreply@example.com"}, "", email.ErrInvalidConfig},
		{"sendgrid bad sender", email.Config{Provider: "sendgrid", SendGridAPIKey: "key", SenderEmail: "x"}, "", email.ErrInvalidConfig},
		{"unknown", email.Config{Provider: "carrier-pigeon"}, "", email.ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := email.NewProvider(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	sender := email.NewDevSender(dir)

	res, err := sender.Send(context.Background(), email.Message{
		To:      "user@example.com",
		Subject: "Weekly Report!",
		HTML:    "<p>hello</p>",
		Text:    "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, email.ProviderDev, res.Provider)
	assert.NotEmpty(t, res.MessageID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var jsonFile string
	for _, e := range entries {
		assert.Contains(t, e.Name(), "weekly_report")
		if strings.HasSuffix(e.Name(), ".json") {
			jsonFile = filepath.Join(dir, e.Name())
		}
	}
	raw, err := os.ReadFile(jsonFile)
	require.NoError(t, err)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, res.MessageID, meta["message_id"])
	assert.Equal(t, "user@example.com", meta["to"])

	_, err = sender.Send(context.Background(), email.Message{To: "bad"})
	assert.ErrorIs(t, err, email.ErrInvalidMessage)
}
