package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

const (
	verificationSubject = "Confirm your email"
	verificationPath    = "/new-verification"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config holds SMTP configuration for sending emails.
type Config struct {
	Host     string `env:"SMTP_HOST" json:"host"`
	Port     int    `env:"SMTP_PORT" envDefault:"587" json:"port"`
	Username string `env:"SMTP_USERNAME" json:"username"`
	Password string `env:"SMTP_PASSWORD" json:"-"`
	From     string `env:"SMTP_FROM" envDefault:"no-reply@authninja.local" json:"from"`
	AppURL   string `env:"APP_URL" envDefault:"http://localhost:3000" json:"app_url"`
}

// ConfigFromEnv reads the SMTP settings from environment variables.
func ConfigFromEnv() (Config, error) {
	return env.ParseAs[Config]()
}

// Enabled reports whether an SMTP host was configured
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

func (c Config) validate() error {
	if c.Host == "" {
		return goerrors.New("missing SMTP_HOST environment variable", goerrors.CategoryValidation)
	}
	if c.Port == 0 {
		return goerrors.New("missing SMTP_PORT environment variable", goerrors.CategoryValidation)
	}
	if c.From == "" {
		return goerrors.New("missing SMTP_FROM environment variable", goerrors.CategoryValidation)
	}
	if c.AppURL == "" {
		return goerrors.New("missing APP_URL environment variable", goerrors.CategoryValidation)
	}
	return nil
}

// VerificationLink builds the confirmation link for token
func VerificationLink(appURL, token string) string {
	return fmt.Sprintf(
		"%s%s?token=%s",
		strings.TrimRight(appURL, "/"),
		verificationPath,
		url.QueryEscape(token),
	)
}

// SMTPMailer sends verification emails over SMTP.
type SMTPMailer struct {
	config Config
	sender Sender
	logger *zerolog.Logger
}

// NewSMTPMailer creates a mailer that dials the configured SMTP server.
func NewSMTPMailer(cfg Config, logger *zerolog.Logger) (*SMTPMailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dialer := gomail.NewDialer(
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
	)

	return NewSMTPMailerWithSender(cfg, dialer, logger), nil
}

// NewSMTPMailerWithSender creates a mailer that hands messages to sender.
func NewSMTPMailerWithSender(cfg Config, sender Sender, logger *zerolog.Logger) *SMTPMailer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SMTPMailer{
		config: cfg,
		sender: sender,
		logger: logger,
	}
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	if email == "" {
		return goerrors.New("no recipients specified", goerrors.CategoryValidation)
	}

	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled before sending email")
	}

	link := VerificationLink(m.config.AppURL, token)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", verificationSubject)
	msg.SetBody("text/html", fmt.Sprintf(`<p>Click <a href="%s">here</a> to confirm email.</p>`, link))
	msg.AddAlternative("text/plain", "Confirm your email: "+link)

	if err := m.sender.DialAndSend(msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send verification email")
	}

	m.logger.Debug().Str("to", email).Msg("verification email sent")

	return nil
}

// LogMailer writes the verification link to the log instead of sending it.
type LogMailer struct {
	AppURL string
	logger *zerolog.Logger
}

func NewLogMailer(appURL string, logger *zerolog.Logger) *LogMailer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogMailer{AppURL: appURL, logger: logger}
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, email, token string) error {
	m.logger.Info().
		Str("to", email).
		Str("subject", verificationSubject).
		Str("link", VerificationLink(m.AppURL, token)).
		Msg("email notification")
	return nil
}
