package app

import (
	"strings"

	"github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/internal/auth/providers"
)

// Rate limit scopes used as key prefixes.
const (
	ScopeLogin                    = "login"
	ScopeRegistration             = "registration"
	ScopeRegistrationConfirmation = "registration-confirmation"
	ScopeEmailResending           = "registration-email-resending"
	ScopePasswordRecovery         = "passwordRecovery"
	ScopeNewPassword              = "new-password"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret: c.JWT.Secret,
		Issuer: strings.TrimSpace(c.JWT.Issuer),
	}
}

// AuthServiceConfig converts AuthConfig into AuthService parameters.
func (c AuthConfig) AuthServiceConfig() auth.AuthConfig {
	accessTTL := c.JWT.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = auth.DefaultAccessTokenTTL
	}
	refreshTTL := c.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTokenTTL
	}

	return auth.AuthConfig{
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	login := c.RateLimit.Rule(ScopeLogin)
	return providers.LocalConfig{
		LoginMax:        login.Max,
		LoginWindow:     login.Window,
		AutoConfirm:     c.Users.AutoConfirm,
		ConfirmationTTL: c.Users.ConfirmationTTL,
		RecoveryTTL:     c.Users.RecoveryTTL,
		ConfirmationURL: strings.TrimSpace(c.Users.ConfirmationURL),
		RecoveryURL:     strings.TrimSpace(c.Users.RecoveryURL),
	}
}

// Rule resolves the limit for scope, falling back to the defaults for unset fields.
func (r RateLimitSettings) Rule(scope string) RateLimitRule {
	rule := RateLimitRule{Max: r.Max, Window: r.Window}

	var override RateLimitRule
	switch scope {
	case ScopeLogin:
		override = r.Login
	case ScopeRegistration:
		override = r.Registration
	}
	if override.Max > 0 {
		rule.Max = override.Max
	}
	if override.Window > 0 {
		rule.Window = override.Window
	}
	return rule
}
