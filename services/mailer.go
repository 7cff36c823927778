package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/utils"
)

// ErrMailDisabled is returned by the no-op mailer.
var ErrMailDisabled = errors.New("email service is not configured")

// Message is one outbound plain text email.
type Message struct {
	To      string
	ReplyTo string
	Subject string
	Body    string
}

// Mailer sends customer emails. Delivery is best effort.
type Mailer interface {
	Enabled() bool
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns an SMTP mailer when SMTP is configured and a no-op mailer otherwise.
func NewMailer(cfg config.AppConfig, logger *zap.Logger) Mailer {
	if !cfg.MailEnabled() {
		return NoopMailer{logger: logger}
	}
	return &SMTPMailer{transport: utils.NewSMTPTransport(cfg), logger: logger}
}

type SMTPMailer struct {
	transport *utils.SMTPTransport
	logger    *zap.Logger
}

func (m *SMTPMailer) Enabled() bool { return true }

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.transport.Send(msg.To, msg.ReplyTo, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	m.logger.Info("mail sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// NoopMailer drops every message.
type NoopMailer struct {
	logger *zap.Logger
}

func (NoopMailer) Enabled() bool { return false }

func (m NoopMailer) Send(_ context.Context, msg Message) error {
	if m.logger != nil {
		m.logger.Debug("mail disabled, dropping message", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}
	return ErrMailDisabled
}

// ClaimUpdateMessage tells a customer their claim changed status.
func ClaimUpdateMessage(to, claimNumber, status string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Claim Update: %s", claimNumber),
		Body: fmt.Sprintf(`Dear Customer,

Your claim %s status has been updated to: %s

You can view the details in your customer portal.

Best regards,
SwissAxa Customer Service
`, claimNumber, status),
	}
}

// AppointmentConfirmationMessage confirms a booking. agentName may be empty.
func AppointmentConfirmationMessage(to string, when time.Time, agentName string) Message {
	with := ""
	if agentName != "" {
		with = " with " + agentName
	}
	return Message{
		To:      to,
		Subject: "Appointment Confirmation - SwissAxa",
		Body: fmt.Sprintf(`Dear Customer,

Your appointment%s has been confirmed for:
%s

We look forward to meeting with you.

Best regards,
SwissAxa Customer Service
`, with, when.Format("2006-01-02 15:04")),
	}
}

// ContactMessage forwards a customer's message to an agent or the service desk.
func ContactMessage(to, senderName, senderEmail, subject, message string) Message {
	return Message{
		To:      to,
		ReplyTo: senderEmail,
		Subject: fmt.Sprintf("Portal Contact: %s", subject),
		Body: fmt.Sprintf(`Message from SwissAxa Customer Portal

From: %s (%s)
Subject: %s

Message:
%s

---
This email was sent from the SwissAxa Customer Self-Service Portal.
`, senderName, senderEmail, subject, message),
	}
}
