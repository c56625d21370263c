// Package smtp delivers reminders as plain-text email over implicit-TLS SMTP.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"alarmd/internal/notifier"
)

type Config struct {
	Host     string
	Port     int
	Sender   string
	Password string
	// Timeout bounds dial + conversation when ctx carries no deadline.
	Timeout time.Duration
	// Plaintext skips TLS. Only meant for a local relay.
	Plaintext bool
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = "smtp.gmail.com"
	}
	if c.Port <= 0 {
		c.Port = 465
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// Configured reports whether the credentials look real.
func (c Config) Configured() bool {
	return !notifier.IsPlaceholder(c.Sender) && !notifier.IsPlaceholder(c.Password)
}

// Sender is a notifier.Notifier for email recipients. One connection per
// message; there is no pooling.
type Sender struct {
	cfg  Config
	now  func() time.Time
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func New(cfg Config) *Sender {
	cfg = cfg.withDefaults()
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &Sender{cfg: cfg, now: time.Now, dial: d.DialContext}
}

func (s *Sender) Configured() bool { return s.cfg.Configured() }

func (s *Sender) Deliver(ctx context.Context, recipient, subject, body string) error {
	cfg := s.cfg
	if !cfg.Configured() {
		return notifier.NotConfigured("smtp", "sender credentials are missing or placeholders")
	}
	to, err := mail.ParseAddress(recipient)
	if err != nil {
		return notifier.DeliveryFailed(err, "smtp: bad recipient %q", recipient)
	}
	from, err := mail.ParseAddress(cfg.Sender)
	if err != nil {
		return notifier.NotConfigured("smtp", fmt.Sprintf("bad sender %q", cfg.Sender))
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	msg, err := buildMessage(from, to, subject, body, s.now())
	if err != nil {
		return notifier.DeliveryFailed(err, "smtp: build message")
	}
	if err := s.send(ctx, from.Address, to.Address, msg); err != nil {
		return notifier.DeliveryFailed(err, "smtp: send to %s", to.Address)
	}
	return nil
}

func (s *Sender) send(ctx context.Context, from, to string, msg []byte) error {
	cfg := s.cfg
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	// Unblock the conversation if ctx is cancelled mid-flight.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if !cfg.Plaintext {
		tc := tls.Client(conn, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return errors.Wrap(err, "tls handshake")
		}
		conn = tc
	}

	c, err := gosmtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "greeting")
	}
	defer c.Close()

	if err := c.Auth(gosmtp.PlainAuth("", cfg.Sender, cfg.Password, cfg.Host)); err != nil {
		return errors.Wrap(err, "auth")
	}
	if err := c.Mail(from); err != nil {
		return errors.Wrap(err, "MAIL FROM")
	}
	if err := c.Rcpt(to); err != nil {
		return errors.Wrap(err, "RCPT TO")
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "DATA")
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "write body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "end DATA")
	}
	return c.Quit()
}

func buildMessage(from, to *mail.Address, subject, body string, now time.Time) ([]byte, error) {
	var b bytes.Buffer
	hdr := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	hdr("From", from.String())
	hdr("To", to.String())
	hdr("Subject", mime.QEncoding.Encode("utf-8", subject))
	hdr("Date", now.Format(time.RFC1123Z))
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", `text/plain; charset="utf-8"`)
	hdr("Content-Transfer-Encoding", "quoted-printable")
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\r\n", "\n"))); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
