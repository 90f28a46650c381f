package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/sessiond/internal/events"
	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/internal/store"
	"github.com/charlesng35/sessiond/pkg/logger"
	"github.com/charlesng35/sessiond/pkg/metrics"
)

// isoMillis renders timestamps with millisecond precision in UTC.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	Clock  func() time.Time
	Events events.Publisher
	Logger *zap.Logger
}

// SessionView is the public description of one active device session.
type SessionView struct {
	IP             string `json:"ip"`
	Title          string `json:"title"`
	LastActiveDate string `json:"lastActiveDate"`
	DeviceID       string `json:"deviceId"`
}

// SessionService lists and terminates a user's device sessions.
type SessionService struct {
	users    UserStore
	sessions SessionStore
	now      func() time.Time
	events   events.Publisher
	log      *zap.Logger
}

func NewSessionService(users UserStore, sessions SessionStore, cfg SessionConfig) (*SessionService, error) {
	if users == nil || sessions == nil {
		return nil, errors.New("session service: user and session stores are required")
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
		log = logger.WithModule("sessions")
	}

	return &SessionService{
		users:    users,
		sessions: sessions,
		now:      clock,
		events:   publisher,
		log:      log,
	}, nil
}

// ListActive returns the user's unexpired sessions, most recently issued first.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]SessionView, error) {
	rows, err := s.sessions.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("session service: list sessions: %w", err)
	}

	views := make([]SessionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, SessionView{
			IP:             row.IPAddress,
			Title:          row.DeviceLabel,
			LastActiveDate: row.IssuedAt.UTC().Format(isoMillis),
			DeviceID:       row.DeviceID,
		})
	}
	return views, nil
}

// Delete terminates one device session owned by userID and invalidates the
// refresh token of that device.
func (s *SessionService) Delete(ctx context.Context, userID, deviceID string) error {
	session, err := s.sessions.FindByDevice(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("session service: find session: %w", err)
	}
	if session.UserID != userID {
		return ErrForbidden
	}

	if _, err := s.sessions.Delete(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("session service: delete session: %w", err)
	}

	err = s.revokeTokens(ctx, userID, func(current models.RefreshTokenState) models.RefreshTokenState {
		return current.WithDeviceRemoved(deviceID)
	})
	if err != nil {
		return err
	}

	metrics.SessionsTerminated.WithLabelValues("revoked").Inc()
	s.publish(ctx, events.Event{Type: events.SessionTerminated, UserID: userID, DeviceID: deviceID, Reason: "revoked"})
	return nil
}

// DeleteAllExceptCurrent terminates every session of the user except the
// current device, whose session and token stay valid.
func (s *SessionService) DeleteAllExceptCurrent(ctx context.Context, userID, currentDeviceID string) (int64, error) {
	rows, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("session service: list sessions: %w", err)
	}

	others := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.DeviceID != currentDeviceID {
			others = append(others, row.DeviceID)
		}
	}

	removed, err := s.sessions.DeleteDevices(ctx, userID, others)
	if err != nil {
		return 0, fmt.Errorf("session service: delete sessions: %w", err)
	}

	// Tokens of devices without a session row are revoked as well.
	err = s.revokeTokens(ctx, userID, func(current models.RefreshTokenState) models.RefreshTokenState {
		next := current
		for _, device := range current.Devices() {
			if device != currentDeviceID {
				next = next.WithDeviceRemoved(device)
			}
		}
		return next
	})
	if err != nil {
		return 0, err
	}

	metrics.SessionsTerminated.WithLabelValues("revoked_others").Add(float64(removed))
	for _, device := range others {
		s.publish(ctx, events.Event{Type: events.SessionTerminated, UserID: userID, DeviceID: device, Reason: "revoked_others"})
	}
	return removed, nil
}

// DeleteAll terminates every session of the user and invalidates all of the
// user's refresh tokens.
func (s *SessionService) DeleteAll(ctx context.Context, userID string) (int64, error) {
	removed, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("session service: delete sessions: %w", err)
	}

	err = s.revokeTokens(ctx, userID, func(current models.RefreshTokenState) models.RefreshTokenState {
		return current.Cleared()
	})
	if err != nil {
		return 0, err
	}

	metrics.SessionsTerminated.WithLabelValues("revoked_all").Add(float64(removed))
	s.publish(ctx, events.Event{Type: events.SessionTerminated, UserID: userID, Reason: "revoked_all", Count: removed})
	return removed, nil
}

// CleanupExpired deletes every session whose expiry has passed and drops the
// refresh tokens of the reaped devices from their accounts.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	reaped, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("session service: cleanup expired: %w", err)
	}
	if len(reaped) == 0 {
		return 0, nil
	}

	byUser := make(map[string][]string)
	for _, row := range reaped {
		byUser[row.UserID] = append(byUser[row.UserID], row.DeviceID)
	}

	var errs error
	for userID, devices := range byUser {
		err := s.revokeTokens(ctx, userID, func(current models.RefreshTokenState) models.RefreshTokenState {
			next := current
			for _, device := range devices {
				next = next.WithDeviceRemoved(device)
			}
			return next
		})
		errs = multierr.Append(errs, err)
	}

	removed := int64(len(reaped))
	metrics.SessionsTerminated.WithLabelValues("expired").Add(float64(removed))
	s.publish(ctx, events.Event{Type: events.SessionsExpired, Count: removed})
	s.log.Info("expired sessions removed", zap.Int64("count", removed), zap.Int("users", len(byUser)))
	return removed, errs
}

// revokeTokens applies a revocation to the user's token state. A user that no
// longer exists has nothing left to revoke.
func (s *SessionService) revokeTokens(ctx context.Context, userID string, revoke func(models.RefreshTokenState) models.RefreshTokenState) error {
	_, err := updateTokenState(ctx, s.users, userID, func(_ *models.User, current models.RefreshTokenState) (models.RefreshTokenState, error) {
		return revoke(current), nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session service: revoke tokens: %w", err)
	}
	return nil
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.events, s.log, s.now, event)
}
