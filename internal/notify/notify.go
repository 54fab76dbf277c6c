// Package notify holds the OTP dispatch channels. The auth flows only see
// the two interfaces; swapping SMTP for a transactional-mail API or the SMS
// gateway for a different vendor never touches the service layer.
//
// Dispatch failures are part of a flow's success criteria: a signup whose
// verification email bounced is reported as a failure to the caller, never
// silently marked successful.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// EmailSender delivers a verification or reset passcode to an email address.
type EmailSender interface {
	SendOTP(ctx context.Context, to string, code int64) error
}

// SMSSender delivers a passcode to a phone number.
type SMSSender interface {
	SendOTP(ctx context.Context, to string, code int64) error
}

// ConsoleEmailSender is a development implementation that logs the email
// instead of sending it.
type ConsoleEmailSender struct {
	Logger *slog.Logger
}

func (c *ConsoleEmailSender) SendOTP(ctx context.Context, to string, code int64) error {
	c.Logger.Info("email OTP (console sender)",
		slog.String("to", to),
		slog.String("subject", "Your SneakEase verification code"),
		slog.Int64("code", code),
	)
	return nil
}

// ConsoleSMSSender is the SMS counterpart of ConsoleEmailSender.
type ConsoleSMSSender struct {
	Logger *slog.Logger
}

func (c *ConsoleSMSSender) SendOTP(ctx context.Context, to string, code int64) error {
	c.Logger.Info("SMS OTP (console sender)",
		slog.String("to", to),
		slog.String("body", fmt.Sprintf("Your OTP for SneakEase verification is: %d", code)),
	)
	return nil
}
