// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/onboarding/utils"
	"go.uber.org/zap"
)

// NotificationService handles sending out-of-band notifications
type NotificationService interface {
	SendEmail(ctx context.Context, email, subject, message string) error
}

// EmailProvider interface for email sending
type EmailProvider interface {
	SendEmail(ctx context.Context, email, subject, message string) error
}

// NotificationServiceImpl implements NotificationService
type NotificationServiceImpl struct {
	emailProvider EmailProvider
}

// NewNotificationService creates a new notification service
func NewNotificationService(emailProvider EmailProvider) NotificationService {
	return &NotificationServiceImpl{
		emailProvider: emailProvider,
	}
}

// SendEmail sends an email to the specified email address
func (s *NotificationServiceImpl) SendEmail(ctx context.Context, email, subject, message string) error {
	if s.emailProvider == nil {
		return fmt.Errorf("email provider not configured")
	}

	if email == "" || !strings.Contains(email, "@") || strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("invalid email address: %s", utils.MaskEmail(email))
	}
	if strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid email subject")
	}

	return s.emailProvider.SendEmail(ctx, email, subject, message)
}

// MockEmailProvider logs the delivery instead of sending it. The message body may carry a
// verification code, so only the subject and the masked recipient are logged.
type MockEmailProvider struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []SentEmail
}

// SentEmail is a delivery captured by MockEmailProvider
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

func NewMockEmailProvider(logger *zap.Logger) *MockEmailProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockEmailProvider{logger: logger}
}

func (p *MockEmailProvider) SendEmail(_ context.Context, email, subject, message string) error {
	p.mu.Lock()
	p.sent = append(p.sent, SentEmail{To: email, Subject: subject, Body: message})
	p.mu.Unlock()

	p.logger.Info("email sent", zap.String("to", utils.MaskEmail(email)), zap.String("subject", subject))
	return nil
}

// Sent returns a copy of every captured delivery
func (p *MockEmailProvider) Sent() []SentEmail {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentEmail, len(p.sent))
	copy(out, p.sent)
	return out
}

type SMTPEmailProvider struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

func NewSMTPEmailProvider(host string, port int, username, password, fromEmail string) EmailProvider {
	return &SMTPEmailProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromEmail: fromEmail,
	}
}

// SendEmail dials with ctx and bounds the whole SMTP exchange by the ctx deadline
func (p *SMTPEmailProvider) SendEmail(ctx context.Context, email, subject, message string) (err error) {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("failed to set smtp deadline: %w", err)
		}
	}

	// unblock any pending read or write once ctx is done
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer func() {
		if err != nil {
			client.Close()
		}
	}()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(&tls.Config{ServerName: p.host}); err != nil {
			return fmt.Errorf("smtp starttls failed: %w", err)
		}
	}
	if p.username != "" {
		if err = client.Auth(smtp.PlainAuth("", p.username, p.password, p.host)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	if err = client.Mail(p.fromEmail); err != nil {
		return fmt.Errorf("smtp MAIL FROM rejected: %w", err)
	}
	if err = client.Rcpt(email); err != nil {
		return fmt.Errorf("smtp RCPT TO rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA rejected: %w", err)
	}
	msg := strings.Join([]string{
		"From: " + p.fromEmail,
		"To: " + email,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		message,
	}, "\r\n")
	if _, err = w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write smtp message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp message not accepted: %w", err)
	}
	return client.Quit()
}
