package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/sessiond/internal/models"
)

// AutoMigrate creates or updates the schema for the account and session tables.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("database: nil handle")
	}
	if err := db.AutoMigrate(&models.User{}, &models.Session{}); err != nil {
		return fmt.Errorf("database: auto migrate: %w", err)
	}
	return nil
}
