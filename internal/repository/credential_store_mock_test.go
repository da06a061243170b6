package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"appleverse/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

var recordColumns = []string{"id", "name", "date_of_birth", "email", "secret_hash", "state", "state_changed_at", "created_at", "updated_at"}

func TestCredentialStore_MoveLocksRowOnPostgres(t *testing.T) {
	now := time.Now()
	db, mock := setupMockDB(t)
	store := NewCredentialStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "identity_records" WHERE \(?id = \$1 AND state IN \(\$2\)\)?.* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("rec-1", "Ada", "1815-12-10", "ada@example.com", "$2a$hash", "pending", now, now, now))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "identity_records" WHERE \(?email = \$1 AND state IN \(\$2,\$3\) AND id <> \$4\)?`).
		WithArgs("ada@example.com", "pending", "active", "rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE "identity_records" SET .* WHERE \(?id = \$\d+ AND state = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	moved, prior, err := store.Move(context.Background(), "rec-1", []models.LifecycleState{models.StatePending}, models.StateActive)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, prior)
	assert.Equal(t, "rec-1", moved.ID)
	assert.Equal(t, models.StateActive, moved.State)
	assert.Equal(t, "$2a$hash", moved.SecretHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_MoveLostRaceIsNotFound(t *testing.T) {
	now := time.Now()
	db, mock := setupMockDB(t)
	store := NewCredentialStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "identity_records" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("rec-1", "Ada", "", "ada@example.com", "$2a$hash", "pending", now, now, now))
	mock.ExpectExec(`UPDATE "identity_records" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, _, err := store.Move(context.Background(), "rec-1", []models.LifecycleState{models.StatePending}, models.StateRejected)
	assertCode(t, err, models.CodeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_DriverFailureIsStorageUnavailable(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewCredentialStore(db)

	mock.ExpectQuery(`SELECT \* FROM "identity_records" WHERE state = \$1`).
		WithArgs("pending").
		WillReturnError(errors.New("connection refused"))

	_, err := store.ListAll(context.Background(), models.StatePending)
	assertCode(t, err, models.CodeStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_MoveDriverFailureRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewCredentialStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "identity_records" .* FOR UPDATE`).
		WillReturnError(errors.New("server closed the connection unexpectedly"))
	mock.ExpectRollback()

	_, _, err := store.Move(context.Background(), "rec-1", []models.LifecycleState{models.StateActive}, models.StateRejected)
	assertCode(t, err, models.CodeStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.False(t, isUniqueConstraintError(nil))
	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: identity_records.email")))
	assert.False(t, isUniqueConstraintError(errors.New("connection reset")))
}

func TestStoreError(t *testing.T) {
	assert.Nil(t, storeError(nil))

	notFound := models.NewNotFoundError("Identity record", "x")
	assert.Same(t, notFound, storeError(notFound))

	assertCode(t, storeError(&pgconn.PgError{Code: "23505"}), models.CodeValidation)
	assertCode(t, storeError(context.DeadlineExceeded), models.CodeStorageUnavailable)
	assertCode(t, storeError(errors.New("boom")), models.CodeStorageUnavailable)
}
