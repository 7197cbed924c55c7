package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/config"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/ingestion"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

type Message struct {
	From    string
	To      []string
	CC      []string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns an SMTP mailer, or a mailer that only logs when no SMTP
// host is configured.
func NewMailer(cfg *config.Config, logger *slog.Logger) Mailer {
	if cfg.SMTPHost == "" {
		return &LogMailer{logger: logger}
	}
	return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
}

// RunMessage builds the report mail for the client's contacts.
func RunMessage(from string, client *models.ClientConfig, run *models.RunRecord, stats *ingestion.RunStats) (Message, error) {
	var body bytes.Buffer
	if err := Render(&body, client, run, stats); err != nil {
		return Message{}, err
	}
	return Message{
		From:    from,
		To:      client.Contact.To,
		CC:      client.Contact.CC,
		Subject: Subject(client, run),
		Body:    body.String(),
	}, nil
}

type SMTPMailer struct {
	host     string
	port     int
	user     string
	password string
	now      func() time.Time
}

func NewSMTPMailer(host string, port int, user, password string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, password: password, now: time.Now}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To)+len(msg.CC) == 0 {
		return fmt.Errorf("mail %q has no recipients", msg.Subject)
	}
	out, err := buildMessage(msg, m.now())
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.host, m.options()...)
	if err != nil {
		return fmt.Errorf("failed to configure mail client for %s: %w", m.host, err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("failed to send mail via %s:%d: %w", m.host, m.port, err)
	}
	return nil
}

func (m *SMTPMailer) options() []mail.Option {
	opts := []mail.Option{mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if m.port > 0 {
		opts = append(opts, mail.WithPort(m.port))
	}
	if m.user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.user),
			mail.WithPassword(m.password))
	}
	return opts
}

// buildMessage encodes msg as a UTF-8 text/plain mail. Non-ASCII headers are
// Q-encoded and the body is quoted-printable.
func buildMessage(msg Message, date time.Time) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if len(msg.To) > 0 {
		if err := out.To(msg.To...); err != nil {
			return nil, fmt.Errorf("invalid recipient: %w", err)
		}
	}
	if len(msg.CC) > 0 {
		if err := out.Cc(msg.CC...); err != nil {
			return nil, fmt.Errorf("invalid cc recipient: %w", err)
		}
	}
	out.Subject(msg.Subject)
	out.SetDateWithValue(date)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	logger := m.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("report not mailed, no SMTP host configured",
		"subject", msg.Subject, "to", strings.Join(msg.To, ","), "cc", strings.Join(msg.CC, ","))
	return nil
}
