package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// IsDuplicateKey reports whether the error is a uniqueness-constraint
// violation. The attempt-number retry loop treats this as the signal that a
// concurrent submit raced to the same number.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	// sqlite, used by the in-memory test databases
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
