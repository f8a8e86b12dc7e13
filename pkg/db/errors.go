package db

import (
	"errors"

	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"gorm.io/gorm"
)

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	return pkgerrors.IsUniqueViolation(err, constraintName)
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
