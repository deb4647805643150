package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/statussync"
)

type sendFunc func(ctx context.Context, msg *mail.SGMailV3) (status int, body string, err error)

type sendGridEmailService struct {
	fromEmail string
	fromName  string
	send      sendFunc
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	client := sendgrid.NewSendClient(apiKey)
	return &sendGridEmailService{
		fromEmail: fromEmail,
		fromName:  fromName,
		send: func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

func decisionEmail(name string, status domain.RegistrationStatus, controlNumber string) (subject, body string) {
	title, message := statussync.NotificationText(status)
	subject = fmt.Sprintf("Membership Request Update - %s", title)
	body = fmt.Sprintf("Hello %s,\n\n%s", name, message)
	if controlNumber != "" {
		body += fmt.Sprintf("\n\nYour control number is %s.", controlNumber)
	}
	body += "\n\nBest regards,\nThe Membership Office"
	return subject, body
}

func (s *sendGridEmailService) SendRegistrationDecision(ctx context.Context, email, name string, status domain.RegistrationStatus, controlNumber string) error {
	subject, body := decisionEmail(name, status, controlNumber)
	msg := mail.NewSingleEmail(mail.NewEmail(s.fromName, s.fromEmail), subject, mail.NewEmail(name, email), body, "")

	logger.ExternalServiceCall("sendgrid", "Send", "to", email, "status", status)
	code, respBody, err := s.send(ctx, msg)
	if err == nil && code >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", code, respBody)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err)
	if err != nil {
		return fmt.Errorf("failed to send registration decision: %w", err)
	}
	return nil
}

type logEmailService struct{}

// NewLogEmailService returns an EmailService that only logs. Used when no
// SendGrid key is configured.
func NewLogEmailService() EmailService {
	return logEmailService{}
}

func (logEmailService) SendRegistrationDecision(ctx context.Context, email, name string, status domain.RegistrationStatus, controlNumber string) error {
	subject, _ := decisionEmail(name, status, controlNumber)
	logger.Info("Email delivery disabled, skipping", "to", email, "subject", subject)
	return nil
}
