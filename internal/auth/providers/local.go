package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/internal/ratelimit"
	"github.com/charlesng35/sessiond/internal/store"
	"github.com/charlesng35/sessiond/pkg/crypto"
	"github.com/charlesng35/sessiond/pkg/logger"
	"github.com/charlesng35/sessiond/pkg/mail"
	"github.com/charlesng35/sessiond/pkg/metrics"
)

const (
	loginScope             = "login"
	defaultLoginMax        = 5
	defaultLoginWindow     = 10 * time.Second
	defaultConfirmationTTL = time.Hour
	defaultRecoveryTTL     = 10 * time.Minute
	defaultConfirmationURL = "http://localhost:8000/confirm-registration"
	defaultRecoveryURL     = "http://localhost:8000/password-recovery"
)

var (
	// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrTooManyAttempts is returned once the client exhausted its failed attempts.
	ErrTooManyAttempts = errors.New("auth: too many failed attempts")
	// ErrLoginTaken and ErrEmailTaken report registration conflicts.
	ErrLoginTaken = errors.New("auth: login already taken")
	ErrEmailTaken = errors.New("auth: email already taken")
	// ErrInvalidConfirmationCode covers unknown, expired and already applied codes.
	ErrInvalidConfirmationCode = errors.New("auth: confirmation code is invalid")
	// ErrEmailNotFound and ErrEmailAlreadyConfirmed reject confirmation resends.
	ErrEmailNotFound         = errors.New("auth: no account with this email")
	ErrEmailAlreadyConfirmed = errors.New("auth: email already confirmed")
	// ErrInvalidRecoveryCode covers unknown, expired and already used codes.
	ErrInvalidRecoveryCode = errors.New("auth: recovery code is invalid")
)

// UserStore is the account persistence used by the local provider.
type UserStore interface {
	FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Exists(ctx context.Context, login, email string) (loginTaken, emailTaken bool, err error)
	Create(ctx context.Context, user *models.User) error
	SetConfirmationCode(ctx context.Context, id, code string, expiresAt time.Time) error
	ConfirmEmail(ctx context.Context, code string, now time.Time) error
	SetRecoveryCode(ctx context.Context, id, code string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, code, passwordHash string, now time.Time) error
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) bool
}

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	// LoginMax failed attempts per client address are allowed within LoginWindow.
	LoginMax    int
	LoginWindow time.Duration
	// AutoConfirm marks new accounts as confirmed and lets unconfirmed ones sign in.
	AutoConfirm     bool
	ConfirmationTTL time.Duration
	RecoveryTTL     time.Duration
	// ConfirmationURL and RecoveryURL are the links mailed to users; the code
	// travels in the "code" query parameter.
	ConfirmationURL string
	RecoveryURL     string
	// Mailer delivers account emails; nil logs them instead.
	Mailer mail.Mailer
	Clock  func() time.Time
	Logger *zap.Logger
}

// AuthenticateInput contains metadata required to authenticate a local user.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
}

// RegisterInput captures the details required to register a new local user.
type RegisterInput struct {
	Login    string
	Email    string
	Password string
}

// LocalProvider implements login-or-email/password authentication with
// per-address limiting of failed attempts.
type LocalProvider struct {
	users       UserStore
	hasher      PasswordHasher
	limiter     ratelimit.Store
	loginMax    int
	loginWindow time.Duration
	autoConfirm bool
	confirmTTL  time.Duration
	recoveryTTL time.Duration
	confirmURL  *url.URL
	recoveryURL *url.URL
	mailer      mail.Mailer
	clock       func() time.Time
	log         *zap.Logger
}

// NewLocalProvider builds a provider with sane defaults.
func NewLocalProvider(users UserStore, hasher PasswordHasher, limiter ratelimit.Store, cfg LocalConfig) (*LocalProvider, error) {
	if users == nil {
		return nil, errors.New("local provider: user store is required")
	}
	if hasher == nil {
		return nil, errors.New("local provider: password hasher is required")
	}
	if limiter == nil {
		return nil, errors.New("local provider: rate limit store is required")
	}

	loginMax := cfg.LoginMax
	if loginMax <= 0 {
		loginMax = defaultLoginMax
	}
	window := cfg.LoginWindow
	if window <= 0 {
		window = defaultLoginWindow
	}
	confirmTTL := cfg.ConfirmationTTL
	if confirmTTL <= 0 {
		confirmTTL = defaultConfirmationTTL
	}
	recoveryTTL := cfg.RecoveryTTL
	if recoveryTTL <= 0 {
		recoveryTTL = defaultRecoveryTTL
	}
	confirmURL, err := parseLink(cfg.ConfirmationURL, defaultConfirmationURL)
	if err != nil {
		return nil, fmt.Errorf("local provider: confirmation url: %w", err)
	}
	recoveryURL, err := parseLink(cfg.RecoveryURL, defaultRecoveryURL)
	if err != nil {
		return nil, fmt.Errorf("local provider: recovery url: %w", err)
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}
	log := cfg.Logger
	if log == nil {
		log = logger.WithModule("auth.local")
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = mail.NewLogMailer(log)
	}

	return &LocalProvider{
		users:       users,
		hasher:      hasher,
		limiter:     limiter,
		loginMax:    loginMax,
		loginWindow: window,
		autoConfirm: cfg.AutoConfirm,
		confirmTTL:  confirmTTL,
		recoveryTTL: recoveryTTL,
		confirmURL:  confirmURL,
		recoveryURL: recoveryURL,
		mailer:      mailer,
		clock:       clock,
		log:         log,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated
// user. Each failure is counted against the client address; once the limit is
// reached failures are reported as ErrTooManyAttempts.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		return nil, p.failedAttempt(ctx, input.IPAddress)
	}

	user, err := p.users.FindByLoginOrEmail(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, p.failedAttempt(ctx, input.IPAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}

	if !user.IsEmailConfirmed && !p.autoConfirm {
		return nil, p.failedAttempt(ctx, input.IPAddress)
	}
	if !p.hasher.Verify(user.PasswordHash, input.Password) {
		return nil, p.failedAttempt(ctx, input.IPAddress)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user, nil
}

func (p *LocalProvider) failedAttempt(ctx context.Context, ip string) error {
	limited, err := p.limiter.IsLimited(ctx, ratelimit.Key(loginScope, ip), p.loginMax, p.loginWindow)
	if err != nil {
		p.log.Warn("login rate limit check failed", zap.String("ip", ip), zap.Error(err))
	}
	if limited {
		metrics.AuthAttempts.WithLabelValues("limited").Inc()
		metrics.RateLimited.WithLabelValues(loginScope).Inc()
		return ErrTooManyAttempts
	}
	metrics.AuthAttempts.WithLabelValues("failure").Inc()
	return ErrInvalidCredentials
}

// Register creates a new local user with a hashed password.
func (p *LocalProvider) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	login := strings.TrimSpace(input.Login)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if login == "" || email == "" || input.Password == "" {
		return nil, errors.New("local provider: login, email and password are required")
	}

	loginTaken, emailTaken, err := p.users.Exists(ctx, login, email)
	if err != nil {
		return nil, fmt.Errorf("local provider: check existing user: %w", err)
	}
	if loginTaken {
		return nil, ErrLoginTaken
	}
	if emailTaken {
		return nil, ErrEmailTaken
	}

	hashed, err := p.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("local provider: hash password: %w", err)
	}

	user := &models.User{
		Login:            login,
		Email:            email,
		PasswordHash:     hashed,
		IsEmailConfirmed: p.autoConfirm,
	}
	var code string
	if !p.autoConfirm {
		var expires time.Time
		code, expires, err = p.newCode(p.confirmTTL)
		if err != nil {
			return nil, fmt.Errorf("local provider: confirmation code: %w", err)
		}
		user.ConfirmationCode = &code
		user.ConfirmationExpiresAt = &expires
	}

	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrLoginTaken
		}
		return nil, fmt.Errorf("local provider: create user: %w", err)
	}

	p.log.Info("user registered", zap.String("user_id", user.ID), zap.Bool("confirmed", user.IsEmailConfirmed))
	if code != "" {
		p.sendConfirmation(ctx, user, code)
	}
	return user, nil
}

// ConfirmRegistration confirms the account that was mailed code.
func (p *LocalProvider) ConfirmRegistration(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidConfirmationCode
	}

	err := p.users.ConfirmEmail(ctx, code, p.clock())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidConfirmationCode
	}
	if err != nil {
		return fmt.Errorf("local provider: confirm email: %w", err)
	}
	return nil
}

// ResendConfirmation replaces the confirmation code of an unconfirmed account
// and mails the new one. With auto confirmation an already confirmed account
// is not an error.
func (p *LocalProvider) ResendConfirmation(ctx context.Context, email string) error {
	user, err := p.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrEmailNotFound
	}
	if err != nil {
		return fmt.Errorf("local provider: query user: %w", err)
	}
	if user.IsEmailConfirmed {
		if p.autoConfirm {
			return nil
		}
		return ErrEmailAlreadyConfirmed
	}

	code, expires, err := p.newCode(p.confirmTTL)
	if err != nil {
		return fmt.Errorf("local provider: confirmation code: %w", err)
	}
	err = p.users.SetConfirmationCode(ctx, user.ID, code, expires)
	if errors.Is(err, store.ErrNotFound) {
		// confirmed between the read and the write
		return ErrEmailAlreadyConfirmed
	}
	if err != nil {
		return fmt.Errorf("local provider: store confirmation code: %w", err)
	}

	p.sendConfirmation(ctx, user, code)
	return nil
}

// RequestPasswordRecovery mails a recovery code to the account owning email.
// Unknown addresses succeed silently so callers cannot discover which accounts exist.
func (p *LocalProvider) RequestPasswordRecovery(ctx context.Context, email string) error {
	user, err := p.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("local provider: query user: %w", err)
	}

	code, expires, err := p.newCode(p.recoveryTTL)
	if err != nil {
		return fmt.Errorf("local provider: recovery code: %w", err)
	}
	err = p.users.SetRecoveryCode(ctx, user.ID, code, expires)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("local provider: store recovery code: %w", err)
	}

	p.sendRecovery(ctx, user, code)
	return nil
}

// ResetPassword sets a new password for the account holding an unexpired
// recovery code. Existing sessions stay open.
func (p *LocalProvider) ResetPassword(ctx context.Context, code, newPassword string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidRecoveryCode
	}
	if newPassword == "" {
		return errors.New("local provider: new password is required")
	}

	hashed, err := p.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("local provider: hash password: %w", err)
	}

	err = p.users.ResetPassword(ctx, code, hashed, p.clock())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidRecoveryCode
	}
	if err != nil {
		return fmt.Errorf("local provider: reset password: %w", err)
	}
	p.log.Info("password reset")
	return nil
}

func (p *LocalProvider) newCode(ttl time.Duration) (string, time.Time, error) {
	code, err := crypto.GenerateToken(24)
	if err != nil {
		return "", time.Time{}, err
	}
	return code, p.clock().Add(ttl), nil
}
