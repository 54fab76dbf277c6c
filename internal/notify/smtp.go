package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPEmailSender sends OTP emails over plain SMTP with AUTH. For providers
// that only expose an HTTP API, implement EmailSender against that API
// instead.
type SMTPEmailSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTPEmailSender) SendOTP(ctx context.Context, to string, code int64) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Your SneakEase verification code\r\n\r\n"+
		"Your OTP for SneakEase verification is: %d\r\n", s.From, to, code)

	if err := smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("notify: sending OTP email to %s: %w", to, err)
	}
	return nil
}
