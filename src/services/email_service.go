package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/optionfolio/backend/src/config"
	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/models"
)

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

func scanAlertSubject(r models.AnalysisResult) string {
	return fmt.Sprintf("Optionfolio: %s is ready for a put sale", r.Symbol)
}

func scanAlertBody(r models.AnalysisResult) string {
	return fmt.Sprintf(`The watchlist scan flagged %s as READY.

Stock price:        %.2f
Bid/ask spread:     %.4f
Mid %% of strike:    %.2f%%
Days to expiration: %d

%s

The Optionfolio App`, r.Symbol, r.StockPrice, r.Spread, r.MidPercent, r.DaysToExpiration, r.Detail)
}

type SMTPEmailService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
}

func (s *SMTPEmailService) SendScanAlert(recipient string, result models.AnalysisResult) error {
	from := s.SenderEmail
	to := []string{recipient}
	subject := scanAlertSubject(result)
	body := scanAlertBody(result)

	header := make(map[string]string)
	header["From"] = from
	header["To"] = recipient
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := smtp.SendMail(addr, auth, from, to, []byte(message)); err != nil {
		logger.L.Error("Failed to send scan alert via SMTP", "error", err, "to", recipient)
		return fmt.Errorf("failed to send scan alert via SMTP: %w", err)
	}
	logger.L.Info("Scan alert sent successfully via SMTP", "to", recipient, "symbol", result.Symbol)
	return nil
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunEmailService) SendScanAlert(recipient string, result models.AnalysisResult) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := scanAlertSubject(result)
	plainTextBody := scanAlertBody(result)

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>The watchlist scan flagged <strong>%s</strong> as READY.</p>
			<ul>
				<li>Stock price: %.2f</li>
				<li>Bid/ask spread: %.4f</li>
				<li>Mid %% of strike: %.2f%%</li>
				<li>Days to expiration: %d</li>
			</ul>
			<p>%s</p>
			<p>The Optionfolio App</p>
		</body>
	</html>`, result.Symbol, result.StockPrice, result.Spread, result.MidPercent, result.DaysToExpiration, result.Detail)

	message := s.mg.NewMessage(from, subject, plainTextBody, recipient)
	message.SetHtml(htmlBody)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send scan alert via Mailgun", "error", err, "to", recipient, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Scan alert sent successfully via Mailgun", "to", recipient, "id", id)
	return nil
}

type MockEmailService struct{}

func (s *MockEmailService) SendScanAlert(recipient string, result models.AnalysisResult) error {
	logger.L.Info("MOCK EMAIL: scan alert",
		"to", recipient, "symbol", result.Symbol, "status", result.Status, "detail", result.Detail)
	return nil
}
