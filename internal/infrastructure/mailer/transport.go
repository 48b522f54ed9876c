package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is a rendered email ready for delivery
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Transport delivers rendered messages
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport writes messages to the log instead of sending them
type LogTransport struct {
	from   string
	logger *zap.Logger
}

// NewLogTransport creates a development transport
func NewLogTransport(from string, logger *zap.Logger) *LogTransport {
	return &LogTransport{from: from, logger: logger}
}

// Send implements Transport. The body carries OTPs and reset links, so it
// is only written at debug level.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("Email (log transport)",
		zap.String("from", t.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTMLBody)))
	t.logger.Debug("Email body (log transport)",
		zap.String("to", msg.To),
		zap.String("body", msg.HTMLBody))
	return nil
}

// SMTPTransport sends mail through an SMTP relay.
// STARTTLS is used when the server offers it; PLAIN auth when a username is set.
type SMTPTransport struct {
	addr      string
	host      string
	username  string
	password  string
	from      mail.Address
	tlsConfig *tls.Config
	timeout   time.Duration
}

// NewSMTPTransport creates an SMTP transport
func NewSMTPTransport(host string, port int, username, password, from, fromName string) (*SMTPTransport, error) {
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if fromName != "" {
		addr.Name = fromName
	}
	return &SMTPTransport{
		addr:      net.JoinHostPort(host, fmt.Sprint(port)),
		host:      host,
		username:  username,
		password:  password,
		from:      *addr,
		tlsConfig: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
		timeout:   30 * time.Second,
	}, nil
}

// Send implements Transport
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	deadline := time.Now().Add(t.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(t.tlsConfig); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if t.username != "" {
		if err := client.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(t.from.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(t.compose(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

func (t *SMTPTransport) compose(msg Message) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", t.from.String())
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), t.host))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	return b.Bytes()
}
