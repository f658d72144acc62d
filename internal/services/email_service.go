package services

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"secretcontest/internal/models"
)

type emailNotifier struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewEmailNotifier(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, toEmail string) Notifier {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	if fromEmail == "" {
		fromEmail = smtpUser
	}
	return &emailNotifier{
		dialer: dialer,
		from:   fromEmail,
		to:     toEmail,
	}
}

func (s *emailNotifier) NotifyWinner(ctx context.Context, contact models.WinnerContact) error {
	m := s.winnerMessage(contact)
	if err := runWithContext(ctx, func() error { return s.dialer.DialAndSend(m) }); err != nil {
		return fmt.Errorf("failed to send winner email: %w", err)
	}
	return nil
}

func (s *emailNotifier) winnerMessage(contact models.WinnerContact) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", "New contest winner")
	if contact.Email != "" {
		m.SetHeader("Reply-To", contact.Email)
	}
	m.SetBody("text/plain", winnerSummary(contact))
	return m
}
