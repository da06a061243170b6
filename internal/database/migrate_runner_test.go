package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMigratorDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func widgetMigrations() []Migration {
	return []Migration{
		{Version: 2, Name: "gadgets", UpScript: "CREATE TABLE gadgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE gadgets"},
		{Version: 1, Name: "widgets", UpScript: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE widgets"},
	}
}

func TestMigrator_UpAppliesInOrderOnce(t *testing.T) {
	db := newMigratorDB(t)
	m := newMigrator(db, widgetMigrations())
	ctx := context.Background()

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, db.Migrator().HasTable("widgets"))
	assert.True(t, db.Migrator().HasTable("gadgets"))

	applied, err := m.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	var logs []MigrationLog
	require.NoError(t, db.Order("version").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, "widgets", logs[0].Name)
	assert.False(t, logs[0].AppliedAt.IsZero())

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrator_FailedScriptLeavesNoRecord(t *testing.T) {
	db := newMigratorDB(t)
	ms := append(widgetMigrations(), Migration{
		Version:  3,
		Name:     "broken",
		UpScript: "CREATE TABLE half_done (id INTEGER PRIMARY KEY); INSERT INTO missing_table VALUES (1)",
	})
	m := newMigrator(db, ms)
	ctx := context.Background()

	n, err := m.Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000003_broken")
	assert.Equal(t, 2, n)
	assert.False(t, db.Migrator().HasTable("half_done"), "the failed script is rolled back")

	applied, err := m.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)
}

func TestMigrator_Down(t *testing.T) {
	db := newMigratorDB(t)
	m := newMigrator(db, widgetMigrations())
	ctx := context.Background()

	_, err := m.Up(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Down(ctx, 2))
	assert.False(t, db.Migrator().HasTable("gadgets"))
	assert.True(t, db.Migrator().HasTable("widgets"))

	applied, err := m.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)

	err = m.Down(ctx, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been applied")

	err = m.Down(ctx, 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMigrator_UnknownLoggedVersionBlocksUp(t *testing.T) {
	db := newMigratorDB(t)
	ctx := context.Background()

	_, err := newMigrator(db, widgetMigrations()).Up(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Create(&MigrationLog{Version: 42, Name: "from_a_newer_build"}).Error)

	_, err = newMigrator(db, widgetMigrations()).Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000042")
}

func TestMigrator_MissingLogTableReadsEmpty(t *testing.T) {
	applied, err := newMigrator(newMigratorDB(t), nil).AppliedVersions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}
