package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/amishk599/jobdigest/internal/model"
)

// Ensure SMTPMailer implements model.Mailer.
var _ model.Mailer = (*SMTPMailer)(nil)

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is "implicit" (SMTPS), "starttls" (required), "opportunistic" or
	// "none". Empty picks implicit on port 465 and starttls otherwise.
	TLS string
}

// SMTPMailer delivers digests as plain-text email.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPMailer returns a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if cfg.TLS == "" {
		cfg.TLS = "starttls"
		if cfg.Port == 465 {
			cfg.TLS = "implicit"
		}
	}
	return &SMTPMailer{cfg: cfg, logger: logger, now: time.Now}
}

// Send delivers msg. The whole exchange is bounded by ctx.
func (m *SMTPMailer) Send(ctx context.Context, msg model.Message) error {
	email, err := m.compose(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := client.DialAndSendWithContext(ctx, email); err != nil {
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}

	m.logger.Info("digest emailed", "to", msg.To, "subject", msg.Subject)
	return nil
}

// compose builds the message. Addresses are parsed, so a recipient carrying
// extra header lines is rejected before anything is dialed.
func (m *SMTPMailer) compose(msg model.Message) (*mail.Msg, error) {
	email := mail.NewMsg()
	if err := email.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from %q: %w", m.cfg.From, err)
	}
	if err := email.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp to %q: %w", msg.To, err)
	}
	email.Subject(msg.Subject)
	email.SetDateWithValue(m.now())
	email.SetMessageID()
	email.SetBodyString(mail.TypeTextPlain, msg.Body)
	return email, nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	switch m.cfg.TLS {
	case "implicit":
		opts = append(opts, mail.WithSSL())
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}
