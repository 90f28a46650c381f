package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/charlesng35/sessiond/internal/events"
	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/internal/store"
	"github.com/charlesng35/sessiond/pkg/logger"
	"github.com/charlesng35/sessiond/pkg/metrics"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	unknownDevice = "unknown device"
	unknownIP     = "unknown"
)

// AuthConfig describes tunable behaviour for the AuthService.
type AuthConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
	Events          events.Publisher
	Logger          *zap.Logger
	// DeviceIDs generates identifiers for new device sessions.
	DeviceIDs func() string
}

// LoginInput identifies an already authenticated user and the client device.
type LoginInput struct {
	UserID      string
	DeviceLabel string
	IPAddress   string
}

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	DeviceID         string
	RefreshExpiresAt time.Time
}

// Principal is the identity carried by a verified token.
type Principal struct {
	UserID   string
	DeviceID string
}

// AuthService opens, rotates and closes device sessions.
type AuthService struct {
	tokens     *JWTService
	users      UserStore
	sessions   SessionStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	events     events.Publisher
	log        *zap.Logger
	deviceIDs  func() string
}

func NewAuthService(tokens *JWTService, users UserStore, sessions SessionStore, cfg AuthConfig) (*AuthService, error) {
	if tokens == nil {
		return nil, errors.New("auth service: jwt service is required")
	}
	if users == nil || sessions == nil {
		return nil, errors.New("auth service: user and session stores are required")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.WithModule("auth")
	}
	deviceIDs := cfg.DeviceIDs
	if deviceIDs == nil {
		deviceIDs = func() string { return ulid.Make().String() }
	}

	return &AuthService{
		tokens:     tokens,
		users:      users,
		sessions:   sessions,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        clock,
		events:     publisher,
		log:        log,
		deviceIDs:  deviceIDs,
	}, nil
}

// RefreshTokenTTL is the lifetime of issued refresh tokens.
func (s *AuthService) RefreshTokenTTL() time.Duration {
	return s.refreshTTL
}

// Login opens a new device session for a user whose credentials were already
// checked. Every call creates a new device id.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (TokenPair, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return TokenPair{}, ErrUnauthorized
	}

	deviceID := s.deviceIDs()
	pair, refreshClaims, err := s.issuePair(userID, deviceID)
	if err != nil {
		return TokenPair{}, err
	}

	_, err = updateTokenState(ctx, s.users, userID, func(_ *models.User, current models.RefreshTokenState) (models.RefreshTokenState, error) {
		return current.WithTokenAdded(refreshClaims.TokenID(), deviceID), nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth service: store refresh token: %w", err)
	}

	session := &models.Session{
		UserID:      userID,
		DeviceID:    deviceID,
		DeviceLabel: orDefault(input.DeviceLabel, unknownDevice),
		IPAddress:   orDefault(input.IPAddress, unknownIP),
		IssuedAt:    refreshClaims.IssuedAt.Time,
		ExpiresAt:   refreshClaims.ExpiresAt.Time,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("auth service: create session: %w", err)
	}

	metrics.SessionsCreated.Inc()
	s.publish(ctx, events.Event{
		Type:      events.SessionCreated,
		UserID:    userID,
		DeviceID:  deviceID,
		IPAddress: session.IPAddress,
	})
	s.log.Info("session created", zap.String("user_id", userID), zap.String("device_id", deviceID))

	return pair, nil
}

// Refresh redeems a refresh token exactly once and returns a new pair for the
// same device. Every failure is reported as ErrUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		s.log.Debug("refresh rejected", zap.Error(err))
		return TokenPair{}, ErrUnauthorized
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return pair, nil
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.verifyRefreshClaims(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	userID, deviceID, tokenID := claims.Subject, claims.DeviceID, claims.TokenID()

	var (
		pair      TokenPair
		newClaims *Claims
	)
	_, err = updateTokenState(ctx, s.users, userID, func(_ *models.User, current models.RefreshTokenState) (models.RefreshTokenState, error) {
		if !current.Contains(tokenID) {
			return current, errTokenNotRedeemable
		}
		next := current.WithTokenRemoved(tokenID)

		var issueErr error
		pair, newClaims, issueErr = s.issuePair(userID, deviceID)
		if issueErr != nil {
			return current, issueErr
		}
		return next.WithTokenAdded(newClaims.TokenID(), deviceID), nil
	})
	if err != nil {
		return TokenPair{}, err
	}

	err = s.sessions.UpdateWindow(ctx, userID, deviceID, newClaims.IssuedAt.Time, newClaims.ExpiresAt.Time)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.log.Warn("refreshed token without session row", zap.String("user_id", userID), zap.String("device_id", deviceID))
	case err != nil:
		s.log.Error("update session window", zap.String("device_id", deviceID), zap.Error(err))
	}

	s.publish(ctx, events.Event{Type: events.SessionRefreshed, UserID: userID, DeviceID: deviceID})
	return pair, nil
}

// Logout invalidates the refresh token and removes its device session.
// Every failure is reported as ErrUnauthorized.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.logout(ctx, refreshToken); err != nil {
		s.log.Debug("logout rejected", zap.Error(err))
		return ErrUnauthorized
	}
	return nil
}

func (s *AuthService) logout(ctx context.Context, refreshToken string) error {
	claims, err := s.verifyRefreshClaims(refreshToken)
	if err != nil {
		return err
	}
	userID, deviceID, tokenID := claims.Subject, claims.DeviceID, claims.TokenID()

	_, err = updateTokenState(ctx, s.users, userID, func(_ *models.User, current models.RefreshTokenState) (models.RefreshTokenState, error) {
		if !current.Contains(tokenID) {
			return current, errTokenNotRedeemable
		}
		return current.WithTokenRemoved(tokenID), nil
	})
	if err != nil {
		return err
	}

	if _, err := s.sessions.Delete(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	metrics.SessionsTerminated.WithLabelValues("logout").Inc()
	s.publish(ctx, events.Event{Type: events.SessionTerminated, UserID: userID, DeviceID: deviceID, Reason: "logout"})
	s.log.Info("session closed", zap.String("user_id", userID), zap.String("device_id", deviceID))
	return nil
}

// VerifyRefreshToken checks a refresh token without redeeming it: the
// signature, the claims, the account and the token id must all be valid.
func (s *AuthService) VerifyRefreshToken(ctx context.Context, refreshToken string) (Principal, error) {
	claims, err := s.verifyRefreshClaims(refreshToken)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil || !user.TokenState().Contains(claims.TokenID()) {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: claims.Subject, DeviceID: claims.DeviceID}, nil
}

func (s *AuthService) verifyRefreshClaims(refreshToken string) (*Claims, error) {
	claims, err := s.tokens.Verify(strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.DeviceID == "" || claims.TokenID() == "" {
		return nil, errIncompleteClaims
	}
	return claims, nil
}

func (s *AuthService) issuePair(userID, deviceID string) (TokenPair, *Claims, error) {
	access, err := s.tokens.Issue(userID, deviceID, s.accessTTL, false)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("auth service: issue access token: %w", err)
	}
	refresh, err := s.tokens.Issue(userID, deviceID, s.refreshTTL, true)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("auth service: issue refresh token: %w", err)
	}

	claims, err := s.tokens.Decode(refresh)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("auth service: %w", err)
	}
	if claims.TokenID() == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return TokenPair{}, nil, ErrMissingTokenID
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		DeviceID:         deviceID,
		RefreshExpiresAt: claims.ExpiresAt.Time,
	}, claims, nil
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.events, s.log, s.now, event)
}

func publishEvent(ctx context.Context, pub events.Publisher, log *zap.Logger, now func() time.Time, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := pub.Publish(ctx, event); err != nil {
		log.Warn("publish session event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
