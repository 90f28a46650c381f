// Package store persists accounts and device sessions with gorm.
package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist or is soft-deleted.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a conditional write lost a race with another writer.
	ErrConflict = errors.New("store: concurrent update")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("store: duplicate value")
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return ErrDuplicate
	default:
		return err
	}
}

// isUniqueViolation covers drivers opened without gorm's TranslateError.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
