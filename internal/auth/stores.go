package auth

import (
	"context"
	"time"

	"github.com/charlesng35/sessiond/internal/models"
)

// UserStore is the account persistence the auth services depend on.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SaveRefreshTokens(ctx context.Context, user *models.User, next models.RefreshTokenState) error
}

// SessionStore is the device session persistence the auth services depend on.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByDevice(ctx context.Context, deviceID string) (*models.Session, error)
	UpdateWindow(ctx context.Context, userID, deviceID string, issuedAt, expiresAt time.Time) error
	ListActive(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	Delete(ctx context.Context, userID, deviceID string) (bool, error)
	DeleteDevices(ctx context.Context, userID string, deviceIDs []string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]models.Session, error)
}
