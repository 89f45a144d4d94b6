// Package notify sends failure and recovery mails for the serve-mode
// ingestion loop.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"

	"github.com/telekom/m365-audit-ingest/pkg/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// Mailer renders notification templates and hands them to a Sender. It
// implements the pipeline's Notifier interface.
type Mailer struct {
	sender    Sender
	receivers []string
	hostname  string
	templates *template.Template
	logger    *zap.SugaredLogger

	now func() time.Time
}

type templateData struct {
	Hostname    string
	Consecutive int
	LastError   string
	Timestamp   time.Time
}

// NewMailer builds a Mailer from the mail config.
func NewMailer(cfg config.MailConfig, logger *zap.Logger) (*Mailer, error) {
	tmpl, err := template.New("notify").Funcs(sprig.HtmlFuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing notification templates: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Mailer{
		sender:    NewSender(cfg, logger),
		receivers: cfg.Receivers,
		hostname:  hostname,
		templates: tmpl,
		logger:    logger.Named("notify").Sugar(),
		now:       time.Now,
	}, nil
}

// NotifyFailure sends a mail after consecutive invocation failures.
func (m *Mailer) NotifyFailure(consecutive int, lastErr error) {
	data := templateData{
		Hostname:    m.hostname,
		Consecutive: consecutive,
		Timestamp:   m.now(),
	}
	if lastErr != nil {
		data.LastError = lastErr.Error()
	}
	subject := fmt.Sprintf("[auditingest] ingestion failing on %s (%d consecutive failures)", m.hostname, consecutive)
	m.send("failure.html", subject, data)
}

// NotifyRecovery sends a mail once ingestion succeeds again after a
// failure notification went out.
func (m *Mailer) NotifyRecovery() {
	data := templateData{
		Hostname:  m.hostname,
		Timestamp: m.now(),
	}
	subject := fmt.Sprintf("[auditingest] ingestion recovered on %s", m.hostname)
	m.send("recovery.html", subject, data)
}

func (m *Mailer) send(templateName, subject string, data templateData) {
	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		m.logger.Errorw("Failed to render notification template", "template", templateName, "error", err)
		return
	}
	if err := m.sender.Send(m.receivers, subject, body.String()); err != nil {
		m.logger.Errorw("Failed to send notification", "template", templateName, "error", err)
	}
}
