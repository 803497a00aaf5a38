package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPConfig configures an SMTPSender. Port 465 uses implicit TLS; any other
// port goes through smtp.SendMail, which upgrades with STARTTLS when offered.
type SMTPConfig struct {
	Host     string `mapstructure:"smtp_host"`
	Port     int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"smtp_username"`
	Password string `mapstructure:"smtp_password"`
	From     string `mapstructure:"from_address"`
}

// SMTPSender sends alerts through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp: host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	s := &SMTPSender{cfg: cfg}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s, nil
}

func (s *SMTPSender) Send(_ context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	msg := []byte(message(s.cfg.From, to, subject, body))
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	if s.cfg.Port == 465 {
		return s.sendTLS(addr, to, msg)
	}
	if err := smtp.SendMail(addr, s.auth, s.cfg.From, to, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) sendTLS(addr string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}

func message(from string, to []string, subject, body string) string {
	return strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
}
