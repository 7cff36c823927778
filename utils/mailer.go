package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/swissaxa/portal/config"
)

// SMTPTransport delivers plain text mail through one SMTP relay.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	StartTLS bool
}

// NewSMTPTransport reads relay settings from cfg.
func NewSMTPTransport(cfg config.AppConfig) *SMTPTransport {
	return &SMTPTransport{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		StartTLS: cfg.SMTPTLS,
	}
}

// Send delivers one message. replyTo may be empty.
func (t *SMTPTransport) Send(to, replyTo, subject, body string) error {
	if t.Host == "" || t.From == "" {
		return errors.New("smtp not configured")
	}
	msg := t.buildMessage(to, replyTo, subject, body)
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))

	var auth smtp.Auth
	if t.Username != "" {
		auth = smtp.PlainAuth("", t.Username, t.Password, t.Host)
	}

	if !t.StartTLS {
		return smtp.SendMail(addr, auth, t.From, []string{to}, msg)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.Host}); err != nil {
			return err
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(t.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (t *SMTPTransport) buildMessage(to, replyTo, subject, body string) []byte {
	from := t.From
	if t.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", t.FromName), t.From)
	}
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	if replyTo != "" {
		b.WriteString("Reply-To: " + replyTo + "\r\n")
	}
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
