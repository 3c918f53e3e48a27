package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevSender writes each message as <stamp>_<slug>.html plus a .json
// metadata file instead of sending it.
type DevSender struct {
	dir string
}

func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir}
}

func (d *DevSender) Name() string { return ProviderDev }

type devMetadata struct {
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"`
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	Text      string `json:"text,omitempty"`
}

func (d *DevSender) Send(_ context.Context, msg Message) (*Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, errors.Join(ErrSendFailed, fmt.Errorf("create output dir: %w", err))
	}

	now := time.Now()
	id := uuid.NewString()
	slug := msg.Tag
	if slug == "" {
		slug = msg.Subject
	}
	base := filepath.Join(d.dir, fmt.Sprintf("%s_%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(slug), id[:8]))

	if msg.HTML != "" {
		if err := os.WriteFile(base+".html", []byte(msg.HTML), 0o644); err != nil {
			return nil, errors.Join(ErrSendFailed, err)
		}
	}

	meta, err := json.MarshalIndent(devMetadata{
		MessageID: id,
		Timestamp: now.Format(time.RFC3339),
		To:        msg.To,
		From:      msg.From,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
		Text:      msg.Text,
	}, "", "  ")
	if err != nil {
		return nil, errors.Join(ErrSendFailed, err)
	}
	if err := os.WriteFile(base+".json", meta, 0o644); err != nil {
		return nil, errors.Join(ErrSendFailed, err)
	}

	return &Result{Provider: ProviderDev, MessageID: id}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.ReplaceAll(s, " ", "_"), "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		return "email"
	}
	return strings.ToLower(s)
}
