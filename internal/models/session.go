package models

import "time"

// Session is one logical login on one device. DeviceID is unique across all
// users; IssuedAt and ExpiresAt mirror the latest refresh token for the device.
type Session struct {
	BaseModel

	UserID      string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	DeviceID    string    `gorm:"uniqueIndex;size:64;not null" json:"device_id"`
	DeviceLabel string    `gorm:"size:512" json:"device_label"`
	IPAddress   string    `gorm:"size:64" json:"ip_address"`
	IssuedAt    time.Time `gorm:"index;not null" json:"issued_at"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"expires_at"`
}
