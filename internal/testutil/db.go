// Package testutil provides shared helpers for package tests.
package testutil

import (
	"testing"

	"appleverse/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB returns an in-memory SQLite database with the schema migrated.
// The pool is pinned to one connection so the in-memory database is shared and
// concurrent transactions serialize the way row locks would on Postgres.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
