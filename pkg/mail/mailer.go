// Package mail delivers account emails over SMTP or, when SMTP is off, to the log.
package mail

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message represents an outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP mailer when settings enable it and a LogMailer otherwise.
func New(settings SMTPSettings, log *zap.Logger) (Mailer, error) {
	if !settings.Enabled {
		return NewLogMailer(log), nil
	}
	return NewSMTPMailer(settings)
}

// LogMailer writes messages to the log instead of delivering them. Codes in
// the body stay out of the log; only the envelope is recorded.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("mail: at least one recipient is required")
	}
	m.log.Info("email not delivered, smtp disabled",
		zap.String("to", strings.Join(recipients, ", ")),
		zap.String("subject", escapeHeader(msg.Subject)),
	)
	return nil
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func escapeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
