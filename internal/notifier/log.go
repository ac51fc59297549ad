package notifier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

// Ensure LogMailer implements model.Mailer.
var _ model.Mailer = (*LogMailer)(nil)

// LogMailer writes digests to the given logger instead of delivering them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a mailer that logs each digest via slog.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the recipient and subject, then one line per bullet.
// Returns nil (stdout logging does not fail).
func (m *LogMailer) Send(_ context.Context, msg model.Message) error {
	m.logger.Info("digest", "to", msg.To, "subject", msg.Subject)
	for _, line := range strings.Split(msg.Body, "\n") {
		if strings.HasPrefix(line, "- ") {
			m.logger.Info("digest item", "to", msg.To, "item", strings.TrimPrefix(line, "- "))
		}
	}
	return nil
}
