package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/sessiond/internal/models"
)

// SessionStore persists one row per logged-in device.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts the session. Timestamps are stored in UTC so that range
// queries compare correctly on every driver.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	session.IssuedAt = session.IssuedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	return translate(s.db.WithContext(ctx).Create(session).Error)
}

// FindByDevice looks a session up by device id regardless of its owner.
func (s *SessionStore) FindByDevice(ctx context.Context, deviceID string) (*models.Session, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Take(&session).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// UpdateWindow overwrites issued/expiry timestamps of the user's device session.
func (s *SessionStore) UpdateWindow(ctx context.Context, userID, deviceID string, issuedAt, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Updates(map[string]any{
			"issued_at":  issuedAt.UTC(),
			"expires_at": expiresAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns sessions of the user expiring after now, newest first.
func (s *SessionStore) ListActive(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now.UTC()).
		Order("issued_at DESC").
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// ListByUser returns every session of the user, expired ones included.
func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&sessions).Error
	return sessions, err
}

// Delete removes the user's device session. Deleting a missing row is not an error.
func (s *SessionStore) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&models.Session{})
	return res.RowsAffected > 0, res.Error
}

// DeleteDevices removes the listed device sessions of the user.
func (s *SessionStore) DeleteDevices(ctx context.Context, userID string, deviceIDs []string) (int64, error) {
	if len(deviceIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id IN ?", userID, deviceIDs).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// DeleteByUser removes every session of the user.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// DeleteExpired removes sessions whose expiry is before now and returns the
// removed rows. An expired row cannot be extended concurrently because its
// refresh token expired with it.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) ([]models.Session, error) {
	var expired []models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at < ?", now.UTC()).Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]string, len(expired))
		for i := range expired {
			ids[i] = expired[i].ID
		}
		return tx.Where("id IN ?", ids).Delete(&models.Session{}).Error
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
