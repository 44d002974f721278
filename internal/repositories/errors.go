package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned by repositories that do not go through gorm lookups.
var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err means the row is missing or soft-deleted.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound)
}
