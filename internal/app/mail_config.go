package app

import (
	"strings"

	"github.com/charlesng35/sessiond/pkg/mail"
)

// SMTPSettings converts the SMTP section into the mail package representation.
func (c SMTPConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.Enabled,
		Host:     strings.TrimSpace(c.Host),
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     strings.TrimSpace(c.From),
		UseTLS:   c.UseTLS,
		Timeout:  c.Timeout,
	}
}
