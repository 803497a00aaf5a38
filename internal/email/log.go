package email

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the logger instead of delivering them. It is
// used when no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, to []string, subject, body string) error {
	l.logger.Warn("alert email (not sent, smtp disabled)",
		zap.Strings("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
