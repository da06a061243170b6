package notifications

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"appleverse/internal/models"
)

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds one delivery when the caller's context has no deadline.
	Timeout time.Duration
}

const defaultMailTimeout = 10 * time.Second

// Enabled reports whether enough settings are present to send mail.
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailNotifier sends notifications over SMTP.
type MailNotifier struct {
	cfg  MailConfig
	send sendFunc
	now  func() time.Time
}

// NewMailNotifier returns a MailNotifier for the given SMTP settings.
func NewMailNotifier(cfg MailConfig) *MailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMailTimeout
	}
	return &MailNotifier{cfg: cfg, send: sendSMTP, now: time.Now}
}

// Notify sends msg to msg.To. The send is abandoned when ctx is done.
func (m *MailNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return models.NewDeliveryFailedError(fmt.Errorf("no recipient"))
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	body := m.compose(msg)

	done := make(chan error, 1)
	go func() {
		done <- m.send(ctx, addr, auth, m.cfg.From, []string{msg.To}, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return models.NewDeliveryFailedError(err)
		}
		return nil
	case <-ctx.Done():
		return models.NewDeliveryFailedError(ctx.Err())
	}
}

// sendSMTP runs one SMTP dialogue. Dialing and every later read or write stop
// when ctx is done.
func sendSMTP(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (m *MailNotifier) compose(msg Message) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(sanitizeHeader(v))
		b.WriteString("\r\n")
	}
	header("From", m.cfg.From)
	header("To", msg.To)
	header("Subject", msg.Subject)
	header("Date", m.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
