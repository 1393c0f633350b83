package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cppla/deptcms/config"
)

// ErrMailNotConfigured is returned when no SMTP host or sender is set.
var ErrMailNotConfigured = errors.New("smtp not configured")

// MailFunc delivers one message to one recipient.
type MailFunc func(to, subject, body string) error

var (
	mailMu   sync.RWMutex
	mailFunc MailFunc = sendSMTP
)

// UseMailer replaces the delivery function and returns the previous one.
// Tests use it to capture outgoing mail.
func UseMailer(fn MailFunc) MailFunc {
	mailMu.Lock()
	defer mailMu.Unlock()
	prev := mailFunc
	mailFunc = fn
	return prev
}

// SendMail sends a plain text email.
func SendMail(to, subject, body string) error {
	mailMu.RLock()
	fn := mailFunc
	mailMu.RUnlock()
	return fn(to, subject, body)
}

// SendMailAsync sends to every recipient in the background and logs failures.
func SendMailAsync(to []string, subject, body string) {
	if len(to) == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Sugar.Errorw("mail goroutine panicked", "panic", r)
			}
		}()
		for _, rcpt := range to {
			if err := SendMail(rcpt, subject, body); err != nil {
				Sugar.Warnw("send mail failed", "to", rcpt, "subject", subject, "error", err)
			}
		}
	}()
}

func buildMessage(cfg config.AppConfig, to, subject, body string) []byte {
	fromName := cfg.SMTPFromName
	if fromName == "" {
		fromName = cfg.SiteName
	}
	var msg strings.Builder
	header := func(k, v string) { fmt.Fprintf(&msg, "%s: %s\r\n", k, v) }
	header("From", fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), cfg.SMTPFrom))
	header("To", to)
	header("Subject", mime.BEncoding.Encode("UTF-8", subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(msg.String())
}

func sendSMTP(to, subject, body string) error {
	cfg := config.Get()
	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		return ErrMailNotConfigured
	}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	msg := buildMessage(cfg, to, subject, body)
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	if !cfg.SMTPTLS {
		// Plain SMTP without TLS (not recommended)
		return smtp.SendMail(addr, auth, cfg.SMTPFrom, []string{to}, msg)
	}

	conn, err := (&net.Dialer{Timeout: 5 * time.Second}).Dial("tcp", addr)
	if err != nil {
		return err
	}
	// ensure we don't hang forever
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.SMTPFrom); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}
