package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiond/internal/models"
)

// UserStore reads and writes accounts. Soft-deleted accounts are invisible.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new account with an empty refresh token state.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if user.RefreshTokens.Data().DeviceTokens == nil {
		user.RefreshTokens = datatypes.NewJSONType(models.RefreshTokenState{}.Cleared())
	}
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByLoginOrEmail matches the login exactly or the email case-insensitively.
func (s *UserStore) FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("login = ? OR LOWER(email) = ?", loginOrEmail, strings.ToLower(loginOrEmail)).
		Take(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByEmail matches the email case-insensitively.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Exists reports which of login and email are already taken.
func (s *UserStore) Exists(ctx context.Context, login, email string) (loginTaken, emailTaken bool, err error) {
	var matches []models.User
	err = s.db.WithContext(ctx).Unscoped().
		Select("login", "email").
		Where("login = ? OR LOWER(email) = ?", login, strings.ToLower(email)).
		Find(&matches).Error
	if err != nil {
		return false, false, err
	}
	for _, m := range matches {
		loginTaken = loginTaken || m.Login == login
		emailTaken = emailTaken || strings.EqualFold(m.Email, email)
	}
	return loginTaken, emailTaken, nil
}

// SaveRefreshTokens replaces the user's token state if nobody else changed it
// since user was loaded. On success user reflects the stored row; on a lost
// race ErrConflict is returned and user is left untouched.
func (s *UserStore) SaveRefreshTokens(ctx context.Context, user *models.User, next models.RefreshTokenState) error {
	wrapped := datatypes.NewJSONType(next)
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND token_version = ?", user.ID, user.TokenVersion).
		Updates(map[string]any{
			"refresh_tokens": wrapped,
			"token_version":  gorm.Expr("token_version + 1"),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}

	user.RefreshTokens = wrapped
	user.TokenVersion++
	return nil
}

// SetConfirmationCode replaces the confirmation code of an unconfirmed
// account. ErrNotFound is returned when the account is gone or already confirmed.
func (s *UserStore) SetConfirmationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	return s.conditionalUpdate(ctx,
		map[string]any{
			"confirmation_code":       code,
			"confirmation_expires_at": expiresAt.UTC(),
		},
		"id = ? AND is_email_confirmed = ?", id, false,
	)
}

// ConfirmEmail confirms the unconfirmed account holding code when the code
// has not expired at now, and clears the code. ErrNotFound covers unknown,
// expired and already applied codes alike.
func (s *UserStore) ConfirmEmail(ctx context.Context, code string, now time.Time) error {
	return s.conditionalUpdate(ctx,
		map[string]any{
			"is_email_confirmed":      true,
			"confirmation_code":       nil,
			"confirmation_expires_at": nil,
		},
		"confirmation_code = ? AND is_email_confirmed = ? AND confirmation_expires_at > ?", code, false, now.UTC(),
	)
}

// SetRecoveryCode stores a password recovery code, replacing any earlier one.
func (s *UserStore) SetRecoveryCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	return s.conditionalUpdate(ctx,
		map[string]any{
			"password_recovery_code":       code,
			"password_recovery_expires_at": expiresAt.UTC(),
		},
		"id = ?", id,
	)
}

// ResetPassword swaps the password hash of the account holding an unexpired
// recovery code and burns the code, so it works once.
func (s *UserStore) ResetPassword(ctx context.Context, code, passwordHash string, now time.Time) error {
	return s.conditionalUpdate(ctx,
		map[string]any{
			"password_hash":                passwordHash,
			"password_recovery_code":       nil,
			"password_recovery_expires_at": nil,
		},
		"password_recovery_code = ? AND password_recovery_expires_at > ?", code, now.UTC(),
	)
}

func (s *UserStore) conditionalUpdate(ctx context.Context, values map[string]any, query string, args ...any) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where(query, args...).Updates(values)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks the account deleted.
func (s *UserStore) SoftDelete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
