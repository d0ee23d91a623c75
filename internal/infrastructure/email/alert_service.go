package email

import (
	"context"
	"fmt"
	"net/smtp"

	"paygate-backend/pkg/logger"
)

// =====================================================
// OPERATOR ALERT MAILER
// =====================================================
// Delivery channel for operator alerts: team lockouts, reconciliation
// mismatches, rule DENY spikes. Merchant-facing notifications go over
// webhooks, never through here.

type AlertData struct {
	Kind     string
	Subject  string
	Body     string
	Metadata map[string]string
}

type AlertService interface {
	SendAlert(ctx context.Context, data AlertData) error
}

type smtpAlertService struct {
	smtpAddr string
	from     string
	to       string
}

func NewSMTPAlertService(smtpHost, smtpPort, operatorAddr string) AlertService {
	return &smtpAlertService{
		smtpAddr: smtpHost + ":" + smtpPort,
		from:     "alerts@paygate.dev",
		to:       operatorAddr,
	}
}

func (s *smtpAlertService) SendAlert(_ context.Context, data AlertData) error {
	body := data.Body
	for key, value := range data.Metadata {
		body += fmt.Sprintf("\n%s: %s", key, value)
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: [%s] %s\r\n\r\n%s",
		s.from, s.to, data.Kind, data.Subject, body))

	if err := smtp.SendMail(s.smtpAddr, nil, s.from, []string{s.to}, msg); err != nil {
		logger.Error("failed to send operator alert", err)
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}
