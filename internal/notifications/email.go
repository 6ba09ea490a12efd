// internal/notifications/email.go - SMTP sink
package notifications

import (
	"context"
	"fmt"
	"net/smtp"
	"path/filepath"
	"strings"

	"github.com/jordan-wright/email"

	"camwatch/internal/config"
)

type EmailSink struct {
	config config.EmailConfig
	send   func(e *email.Email) error
}

func NewEmailSink(cfg config.EmailConfig) *EmailSink {
	s := &EmailSink{config: cfg}
	s.send = s.smtpSend
	return s
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) SendText(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.newEmail(msg.Title)
	e.HTML = []byte("<p>" + strings.ReplaceAll(msg.Body, "\n", "<br>\n") + "</p>")
	return s.send(e)
}

// SendAttachment mails the file on its own so a failed attachment never
// holds back the alert text.
func (s *EmailSink) SendAttachment(ctx context.Context, att Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.newEmail(att.Caption)
	e.Text = []byte(att.Caption)
	if _, err := e.AttachFile(att.Path); err != nil {
		return fmt.Errorf("failed to attach %s: %w", filepath.Base(att.Path), err)
	}
	return s.send(e)
}

func (s *EmailSink) newEmail(subject string) *email.Email {
	e := email.NewEmail()
	e.From = s.config.From
	e.To = s.config.To
	e.Subject = subject
	return e
}

func (s *EmailSink) smtpSend(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
