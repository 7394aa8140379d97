package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a conditional write finds the record changed.
	ErrConflict = errors.New("repository: concurrent modification")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("repository: duplicate")
)

// IsNotFound reports not-found errors from any backing store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, mongo.ErrNoDocuments)
}

const uniqueViolation = "23505"

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
