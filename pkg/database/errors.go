package database

import (
	stderrors "errors"

	"github.com/lib/pq"

	"github.com/ecodeli/ecodeli-backend/pkg/errors"
)

// PostgreSQL error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
)

// MapPQError converts a PostgreSQL constraint error to an AppError.
// Returns nil if the error is not a constraint violation.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case codeUniqueViolation:
		return errors.Conflict("a record with these values already exists")
	case codeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")
	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{col: "must not be empty"})
	case codeCheckViolation:
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)
	default:
		return nil
	}
}
