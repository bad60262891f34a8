package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"quotr/internal/platform/config"
)

type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers a message and returns the id it was sent under.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPSender submits messages to one SMTP relay. PLAIN auth is used when a
// username is configured.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from mail.Address
}

// NewSMTPSender returns nil when no SMTP host is configured.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	if cfg.SMTPHost == "" {
		return nil
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}
	return &SMTPSender{
		addr: net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(port)),
		auth: auth,
		from: mail.Address{Name: cfg.FromName, Address: cfg.FromAddress},
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	id := messageID(s.from.Address)
	body, err := compose(s.from, msg, id, time.Now())
	if err != nil {
		return "", err
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.from.Address, msg.To, body)
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("send mail: %w", err)
		}
		return id, nil
	}
}

func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}

// compose renders an HTML message with quoted-printable body.
func compose(from mail.Address, msg Message, id string, at time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k + ": " + v + "\r\n")
	}
	header("From", from.String())
	header("To", strings.Join(msg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Message-ID", id)
	header("Date", at.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	w := quotedprintable.NewWriter(&buf)
	if _, err := w.Write([]byte(msg.HTML)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
