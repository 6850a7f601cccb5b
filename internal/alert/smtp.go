package alert

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"path/filepath"
	"strings"
	"time"

	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/pkg/models"
)

// SMTPSink is the default alert channel, grounded on the original
// monitor's TLS-SMTP alert mail (subject "ТРИВОГА: <basename>").
type SMTPSink struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
}

// NewSMTPSink builds a SMTPSink from config. to is the recipient address
// (core.alert_email); every send returns an error without dialing if
// that address is empty or lacks an "@".
func NewSMTPSink(cfg config.SMTPConfig, to string) *SMTPSink {
	return &SMTPSink{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       to,
	}
}

func (s *SMTPSink) Name() string { return "smtp" }

func (s *SMTPSink) Send(incident models.Incident) error {
	subject := fmt.Sprintf("ТРИВОГА: %s", filepath.Base(incident.Path))
	if incident.Path == "" {
		subject = fmt.Sprintf("ТРИВОГА: %s", incident.Risk)
	}
	body := fmt.Sprintf("%s\n\n%s\n\nPath: %s\nTime: %s",
		subject, incident.Details, incident.Path, incident.Timestamp.Format(time.RFC3339))
	return s.send(subject, body)
}

func (s *SMTPSink) SendRaw(message string) error {
	return s.send("RansomGuard notification", message)
}

func (s *SMTPSink) Test() error {
	return s.send("RansomGuard test alert", "This is a test alert from RansomGuard. If you received this, mail delivery is configured correctly.")
}

func (s *SMTPSink) send(subject, body string) error {
	if s.to == "" || !strings.Contains(s.to, "@") {
		return fmt.Errorf("smtp: invalid recipient %q", s.to)
	}

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.from, s.to, subject, body)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.host})
	if err != nil {
		return fmt.Errorf("smtp: dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp: auth: %w", err)
	}
	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	if err := client.Rcpt(s.to); err != nil {
		return fmt.Errorf("smtp: rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp: write: %w", err)
	}
	return w.Close()
}
