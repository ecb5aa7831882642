package mail

import (
	"context"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"

	"mioym/internal/config"
)

type Email struct {
	Subject      string
	Body         string
	From         string
	To           []string
	Template     string
	TemplateVars map[string]any
}

type Mailer interface {
	SendMail(ctx context.Context, e *Email) error
	SendTemplatedMail(ctx context.Context, e *Email) error
}

type Mailgun struct {
	domain  string
	apiKey  string
	apiBase string
}

func NewMailer(domain, apiKey, apiBase string) *Mailgun {
	return &Mailgun{
		domain:  domain,
		apiKey:  apiKey,
		apiBase: apiBase,
	}
}

// FromConfig returns a Mailgun mailer, or a LogMailer when no API key is set.
func FromConfig(cfg *config.Config, log *zap.Logger) Mailer {
	if cfg.MailgunAPIKey == "" {
		log.Warn("MAILGUN_API_KEY not set, outgoing mail is logged only")
		return &LogMailer{log: log}
	}
	return NewMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunAPIBase)
}

// Send delivers e through its template when one is named and as plain text
// otherwise.
func Send(ctx context.Context, m Mailer, e *Email) error {
	if e.Template == "" {
		return m.SendMail(ctx, e)
	}
	return m.SendTemplatedMail(ctx, e)
}

func (m *Mailgun) client() *mailgun.MailgunImpl {
	mg := mailgun.NewMailgun(m.domain, m.apiKey)
	if m.apiBase != "" {
		mg.SetAPIBase(m.apiBase)
	}
	return mg
}

func (m *Mailgun) SendMail(ctx context.Context, e *Email) error {
	message := mailgun.NewMessage(e.From, e.Subject, e.Body, e.To...)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	_, _, err := m.client().Send(ctx, message)
	if err != nil {
		return err
	}

	return nil
}

func (m *Mailgun) SendTemplatedMail(ctx context.Context, e *Email) error {
	message := mailgun.NewMessage(e.From, e.Subject, "", e.To...)
	message.SetTemplate(e.Template)

	for k, v := range e.TemplateVars {
		if err := message.AddTemplateVariable(k, v); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	_, _, err := m.client().Send(ctx, message)
	if err != nil {
		return err
	}

	return nil
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	log *zap.Logger
}

func (m *LogMailer) SendMail(_ context.Context, e *Email) error {
	m.log.Info("mail not sent",
		zap.Strings("to", e.To),
		zap.String("subject", e.Subject),
	)
	return nil
}

func (m *LogMailer) SendTemplatedMail(_ context.Context, e *Email) error {
	m.log.Info("templated mail not sent",
		zap.Strings("to", e.To),
		zap.String("subject", e.Subject),
		zap.String("template", e.Template),
	)
	return nil
}
