package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPMailer delivers email notifications through a single relay.
// The zero value is not usable; construct with NewSMTPMailer.
type SMTPMailer struct {
	// Addr is the relay address, host or host:port. A bare host gets
	// port 25.
	Addr string

	// From is the envelope sender and From header.
	From string

	// Username enables PLAIN authentication when non-empty.
	Username string
	Password string

	// Timeout bounds the dial. Session deadlines come from ctx.
	Timeout time.Duration

	// now is injectable for deterministic Date headers in tests.
	now func() time.Time
}

// NewSMTPMailer creates a mailer for the given relay and sender.
func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{
		Addr:    addr,
		From:    from,
		Timeout: 30 * time.Second,
		now:     time.Now,
	}
}

// SendMail delivers one message to all recipients in a single SMTP
// session. STARTTLS is used when the relay offers it.
//
// net/smtp has no context support, so the context deadline is applied
// as a connection deadline: a stalled relay fails the session instead
// of hanging the run.
func (m *SMTPMailer) SendMail(ctx context.Context, to []string, subject string, body []string) error {
	if len(to) == 0 {
		return nil
	}

	addr := m.Addr
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		addr = net.JoinHostPort(addr, "25")
	}

	dialer := &net.Dialer{Timeout: m.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if m.Username != "" {
		auth := smtp.PlainAuth("", m.Username, m.Password, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	now := m.now
	if now == nil {
		now = time.Now
	}
	if _, err := w.Write(buildMessage(m.From, to, subject, body, now())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles an RFC 5322 plain-text message with CRLF line
// endings.
func buildMessage(from string, to []string, subject string, body []string, date time.Time) []byte {
	var b strings.Builder
	write := func(line string) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}

	write("From: " + from)
	write("To: " + strings.Join(to, ", "))
	write("Subject: " + subject)
	write("Date: " + date.UTC().Format(time.RFC1123Z))
	write("MIME-Version: 1.0")
	write("Content-Type: text/plain; charset=utf-8")
	write("")
	for _, line := range body {
		write(line)
	}
	return []byte(b.String())
}
