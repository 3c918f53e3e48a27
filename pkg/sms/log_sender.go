package sms

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// LogSender logs messages instead of sending them. For development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(l *slog.Logger) *LogSender {
	if l == nil {
		l = slog.Default()
	}
	return &LogSender{logger: l.With(logger.Provider(ProviderLog))}
}

func (s *LogSender) Name() string { return ProviderLog }

func (s *LogSender) Send(ctx context.Context, msg Message) (*Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	s.logger.InfoContext(ctx, "sms sent",
		logger.MessageID(id),
		slog.String("to", msg.To),
		slog.Int("length", len([]rune(msg.Body))),
		slog.String("body", msg.Body))
	return &Result{Provider: ProviderLog, MessageID: id}, nil
}
