package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is an account able to authenticate and hold device sessions.
//
// RefreshTokens is only ever replaced as a whole through the user store's
// compare-and-swap write guarded by TokenVersion.
type User struct {
	BaseModel

	Login        string `gorm:"uniqueIndex;size:64;not null" json:"login"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	IsEmailConfirmed      bool       `gorm:"default:false" json:"is_email_confirmed"`
	ConfirmationCode      *string    `gorm:"index" json:"-"`
	ConfirmationExpiresAt *time.Time `json:"-"`

	PasswordRecoveryCode      *string    `gorm:"index" json:"-"`
	PasswordRecoveryExpiresAt *time.Time `json:"-"`

	RefreshTokens datatypes.JSONType[RefreshTokenState] `json:"-"`
	TokenVersion  int64                                 `gorm:"not null;default:0" json:"-"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TokenState returns the refresh token aggregate currently held by the user.
func (u *User) TokenState() RefreshTokenState {
	return u.RefreshTokens.Data()
}
