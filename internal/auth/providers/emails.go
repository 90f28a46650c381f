package providers

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/pkg/mail"
)

func parseLink(raw, fallback string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	link, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !link.IsAbs() {
		return nil, errors.New("link must be absolute")
	}
	return link, nil
}

func linkWithCode(base *url.URL, code string) string {
	link := *base
	query := link.Query()
	query.Set("code", code)
	link.RawQuery = query.Encode()
	return link.String()
}

func (p *LocalProvider) sendConfirmation(ctx context.Context, user *models.User, code string) {
	p.deliver(ctx, user, mail.Message{
		To:      []string{user.Email},
		Subject: "confirm registration",
		Body: "Thank you for your registration.\r\n" +
			"To finish it please confirm your email via link " + linkWithCode(p.confirmURL, code) + "\r\n",
	})
}

func (p *LocalProvider) sendRecovery(ctx context.Context, user *models.User, code string) {
	p.deliver(ctx, user, mail.Message{
		To:      []string{user.Email},
		Subject: "password recovery",
		Body: "To finish password recovery please follow the link " + linkWithCode(p.recoveryURL, code) + "\r\n" +
			"The link expires in " + p.recoveryTTL.String() + ".\r\n",
	})
}

// Delivery failures never fail the request; the user can ask for a new code.
func (p *LocalProvider) deliver(ctx context.Context, user *models.User, msg mail.Message) {
	if err := p.mailer.Send(ctx, msg); err != nil {
		p.log.Warn("send email",
			zap.String("user_id", user.ID),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}
