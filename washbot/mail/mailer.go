// Package mail delivers one-time verification codes over SMTPS and enforces
// the resend policy for them.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// Sender sends a verification code to an address. Split out so tests can
// swap the SMTP wire for a recorder.
type Sender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

type Mailer struct {
	host       string
	port       int
	user       string
	password   string
	senderName string
}

func NewMailer(host string, port int, user, password, senderName string) *Mailer {
	return &Mailer{
		host:       host,
		port:       port,
		user:       user,
		password:   password,
		senderName: senderName,
	}
}

// SendVerificationCode delivers the code over implicit-TLS SMTP. The subject
// carries the code so it shows up in mailbox previews.
func (m *Mailer) SendVerificationCode(ctx context.Context, to, code string) error {
	subject := fmt.Sprintf("[%s] Код подтверждения для бота Studcom Wash", code)
	body := fmt.Sprintf(
		"Привет!\r\n\r\n"+
			"Твой код для подтверждения почты в боте: %s\r\n\r\n"+
			"Если ты не запрашивал этот код, просто проигнорируй это письмо.\r\n",
		code)

	msg := fmt.Sprintf(
		"From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		mime.QEncoding.Encode("utf-8", m.senderName), m.user,
		to,
		mime.QEncoding.Encode("utf-8", subject),
		body)

	start := time.Now()
	err := m.send(ctx, to, []byte(msg))
	if err != nil {
		slog.Error("Verification email failed",
			slog.String("to", to),
			slog.Duration("took", time.Since(start)),
			slog.Any("error", err))
		return err
	}

	slog.Info("Verification email sent",
		slog.String("to", to),
		slog.Duration("took", time.Since(start)))
	return nil
}

func (m *Mailer) send(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 10 * time.Second}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.Auth(smtp.PlainAuth("", m.user, m.password, m.host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(m.user); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp finish: %w", err)
	}
	return client.Quit()
}
