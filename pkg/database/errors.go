package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/scanflow/scanflow-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with a
// meaningful message. Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Check constraint violation (23514)
	case "23514":
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	default:
		return nil
	}
}

// formatConstraintMessage creates a message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "order_number"):
		return "a production order with this number already exists"
	case strings.Contains(constraint, "internal_code"):
		return "a reference product with this internal code already exists"
	case strings.Contains(constraint, "client_code"):
		return "a reference product with this client code already exists"
	case strings.Contains(constraint, "unit_number"):
		return "a handling unit with this number already exists on the order"
	default:
		return "a record with these values already exists"
	}
}
