package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// Mailer delivers a message to an external channel. Delivery is best-effort:
// callers log failures and never propagate them into the triggering business
// operation.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer is the default outbound channel: it records the send instead of
// talking to a real provider. Swapping in SMTP or a delivery API only
// requires another Mailer implementation.
type LogMailer struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewLogMailer builds the logging mailer.
func NewLogMailer(logger *zap.Logger, cfg config.NotificationConfig) *LogMailer {
	return &LogMailer{logger: logger, cfg: cfg}
}

// Send logs the outbound message.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Debug("outbound email",
		zap.String("from", m.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}
