package repository

import (
	"errors"
	"strings"

	"appleverse/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const emailInUseMessage = "Another pending or active record already uses this email"

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, uniqueViolation)
}

// storeError maps a driver error onto the application error taxonomy.
// AppErrors pass through; unique violations become validation errors; everything
// else, including context deadline and cancellation, is storage unavailability.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if isUniqueConstraintError(err) {
		return models.NewValidationError("Email is already registered")
	}
	return models.NewStorageUnavailableError(err)
}

func stateStrings(states []models.LifecycleState) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	return out
}

func requireStates(states ...models.LifecycleState) error {
	if len(states) == 0 {
		return models.NewValidationError("At least one lifecycle state is required")
	}
	for _, s := range states {
		if !s.Valid() {
			return models.NewValidationError("Unknown lifecycle state: " + string(s))
		}
	}
	return nil
}
