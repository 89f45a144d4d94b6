package notify

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/telekom/m365-audit-ingest/pkg/config"
	"github.com/telekom/m365-audit-ingest/pkg/metrics"
)

// Sender delivers a rendered notification mail.
type Sender interface {
	Send(receivers []string, subject, body string) error
}

type sender struct {
	dialer         *gomail.Dialer
	senderAddress  string
	senderName     string
	retryCount     int
	retryBackoffMs int
	logger         *zap.SugaredLogger
}

// NewSender builds an SMTP sender from the mail config.
func NewSender(cfg config.MailConfig, logger *zap.Logger) Sender {
	log := logger.Named("mail").Sugar()
	log.Infow("Initializing mail sender", "host", cfg.Host, "port", cfg.Port, "user", cfg.User)

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Configurable for testing
	}

	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = "noreply@auditingest.local"
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "Audit Ingestion"
	}

	return &sender{
		dialer:         d,
		senderAddress:  senderAddr,
		senderName:     senderName,
		retryCount:     3,
		retryBackoffMs: 100,
		logger:         log,
	}
}

func (s *sender) Send(receivers []string, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("Bcc", receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	var lastErr error
	backoffMs := s.retryBackoffMs

	for attempt := 0; attempt <= s.retryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(backoffMs) * time.Millisecond)
			backoffMs *= 2
		}
		if lastErr = s.dialer.DialAndSend(msg); lastErr == nil {
			metrics.NotificationsSent.WithLabelValues("success").Inc()
			s.logger.Infow("Notification mail sent", "receivers", len(receivers), "subject", subject)
			return nil
		}
		s.logger.Warnw("Mail send attempt failed", "attempt", attempt+1, "error", lastErr)
	}

	metrics.NotificationsSent.WithLabelValues("error").Inc()
	s.logger.Errorw("Giving up sending notification mail", "subject", subject, "error", lastErr)
	return lastErr
}
