// Package mailer sends notification and digest emails over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/linnemanlabs/mailwatch/internal/message"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

const dialTimeout = 10 * time.Second

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Mailer sends mail through a single SMTP relay. If Host is empty, sends
// are no-ops.
type Mailer struct {
	cfg Config
}

// New creates a mailer over the given SMTP settings.
func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// Name implements notify.Channel.
func (m *Mailer) Name() string { return "email" }

// Send delivers a plain-text alert mail for a triaged message.
func (m *Mailer) Send(ctx context.Context, msg *message.Message, r *triage.Result) error {
	if m.cfg.Host == "" {
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(r.Tier)), msg.Subject)
	body := r.Summary
	if body == "" {
		body = msg.Body
	}
	text := fmt.Sprintf("From: %s\nScore: %d (%s)\n\n%s\n", msg.From, r.Score, r.Tier, body)

	return m.send(ctx, subject, "text/plain; charset=utf-8", text)
}

// SendHTML delivers an HTML mail with the given subject, used for digests.
func (m *Mailer) SendHTML(ctx context.Context, subject, html string) error {
	if m.cfg.Host == "" {
		return nil
	}
	return m.send(ctx, subject, "text/html; charset=utf-8", html)
}

func (m *Mailer) send(ctx context.Context, subject, contentType, body string) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", m.cfg.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("\r\n")
	msg.WriteString(body)

	// net/smtp has no context support, so the deadline is enforced on the
	// connection itself.
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mailer: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer: smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("mailer: starttls: %w", err)
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("mailer: auth: %w", err)
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mailer: mail from: %w", err)
	}
	for _, rcpt := range strings.Split(m.cfg.To, ",") {
		rcpt = strings.TrimSpace(rcpt)
		if rcpt == "" {
			continue
		}
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mailer: rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mailer: data: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		_ = w.Close()
		return fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: close body: %w", err)
	}

	return c.Quit()
}
