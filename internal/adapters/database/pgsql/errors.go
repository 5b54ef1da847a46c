package pgsql

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/northfin/recon_backend/internal/apperrors"
)

const uniqueViolationCode = "23505"

// mapError translates driver errors into application sentinels so callers
// can branch with errors.Is without importing pgx.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	if pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w: %v", op, apperrors.ErrTransient, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%s: %w", op, apperrors.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
