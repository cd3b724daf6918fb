package notification

import (
	"context"
	"strings"

	"github.com/JonMunkholm/grc/internal/logging"
)

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(ctx context.Context, m Mail) error {
	logging.FromContext(ctx).Info("email",
		"from", m.From,
		"to", strings.Join(m.To, ","),
		"subject", m.Subject,
		"body_bytes", len(m.Body),
	)
	return nil
}
