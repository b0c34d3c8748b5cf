// Package notify emails a run's opportunity table over SMTP.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alvmarrod/opportunity-finder/internal/config"
	"github.com/alvmarrod/opportunity-finder/internal/report"
	"github.com/alvmarrod/opportunity-finder/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
	"golang.org/x/text/unicode/norm"
)

const plainTextBody = "This email requires an HTML-capable email client."

// Credentials authenticate against the SMTP server and double as the sender address
type Credentials struct {
	Address  string
	Password string
}

// CredentialsFromEnv reads the sender address and password from the configured variables
func CredentialsFromEnv(cfg config.EmailConfig) (Credentials, error) {
	creds := Credentials{
		Address:  strings.TrimSpace(os.Getenv(cfg.SenderEnv)),
		Password: os.Getenv(cfg.PasswordEnv),
	}
	if creds.Address == "" || creds.Password == "" {
		return creds, fmt.Errorf("email credentials missing: set %s and %s", cfg.SenderEnv, cfg.PasswordEnv)
	}
	return creds, nil
}

// Mailer composes and sends report emails
type Mailer struct {
	cfg           config.EmailConfig
	creds         Credentials
	highlightRank int
}

// NewMailer creates a Mailer
func NewMailer(cfg config.EmailConfig, creds Credentials, highlightRank int) *Mailer {
	return &Mailer{cfg: cfg, creds: creds, highlightRank: highlightRank}
}

// Recipient builds localPart@recipient_domain
func (m *Mailer) Recipient(localPart string) (string, error) {
	localPart = strings.TrimSpace(localPart)
	if localPart == "" {
		return "", errors.New("recipient username is required")
	}
	if strings.ContainsAny(localPart, "@ \t\r\n") {
		return "", fmt.Errorf("invalid recipient username %q", localPart)
	}
	return localPart + "@" + m.cfg.RecipientDomain, nil
}

// Subject returns the sanitized subject line for run
func Subject(run *storage.Run) string {
	name, id := report.DisplayName(run)
	return fmt.Sprintf("%s (%s) opportunities", SanitizeHeader(name), SanitizeHeader(id))
}

// Compose builds the message: a plain-text fallback and the HTML report as alternative
func (m *Mailer) Compose(run *storage.Run, localPart string) (*mail.Msg, error) {
	if len(run.Results) == 0 {
		return nil, errors.New("run has no opportunities to send")
	}

	to, err := m.Recipient(localPart)
	if err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := report.RenderHTML(&html, run, m.highlightRank); err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.creds.Address); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(Subject(run))
	msg.SetBodyString(mail.TypeTextPlain, plainTextBody)
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())

	return msg, nil
}

// Send delivers msg over implicit TLS
func (m *Mailer) Send(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.SMTPHost,
		mail.WithPort(m.cfg.SMTPPort),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.creds.Address),
		mail.WithPassword(m.creds.Password),
		mail.WithTimeout(time.Duration(m.cfg.TimeoutMs)*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logrus.Infof("Report emailed via %s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	return nil
}

// SanitizeHeader decomposes text (NFKD) and keeps printable ASCII only,
// so accents are reduced to their base letter and CR/LF cannot inject headers
func SanitizeHeader(text string) string {
	text = norm.NFKD.String(text)
	text = strings.Map(func(r rune) rune {
		if r < ' ' || r > '~' {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(text)
}
