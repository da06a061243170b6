package database

import (
	"context"
	"testing"

	"appleverse/internal/config"
	"appleverse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		StoreDriver:              config.StoreDriverPostgres,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)

	cfg.StoreDriver = config.StoreDriverSQLite
	require.NoError(t, configurePool(db, cfg))
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestDialectorFor(t *testing.T) {
	d, err := dialectorFor(&config.Config{StoreDriver: config.StoreDriverSQLite, DBSQLitePath: "x.db"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = dialectorFor(&config.Config{StoreDriver: config.StoreDriverPostgres})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = dialectorFor(&config.Config{StoreDriver: config.StoreDriverMongo})
	assert.Error(t, err)
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{name: "hybrid dev", cfg: config.Config{DBSchemaMode: "hybrid", Env: "development"}, wantSQL: true, wantAuto: true},
		{name: "hybrid prod", cfg: config.Config{DBSchemaMode: "hybrid", Env: "production"}, wantSQL: true},
		{name: "sql only", cfg: config.Config{DBSchemaMode: "sql", Env: "development"}, wantSQL: true},
		{name: "auto dev", cfg: config.Config{DBSchemaMode: "auto", Env: "development"}, wantAuto: true},
		{name: "auto prod refused", cfg: config.Config{DBSchemaMode: "auto", Env: "production"}, wantErr: true},
		{name: "auto prod allowed", cfg: config.Config{DBSchemaMode: "auto", Env: "production", DBAutoMigrateAllowDestructive: true}, wantAuto: true},
		{name: "sqlite always auto", cfg: config.Config{DBSchemaMode: "sql", StoreDriver: config.StoreDriverSQLite}, wantAuto: true},
		{name: "unknown mode", cfg: config.Config{DBSchemaMode: "yolo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAuto, runAuto)
		})
	}
}

func TestApplySchema_SQLiteCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{StoreDriver: config.StoreDriverSQLite, DBSchemaMode: SchemaModeHybrid, Env: "test"}
	require.NoError(t, ApplySchema(context.Background(), db, cfg))

	assert.True(t, db.Migrator().HasTable("identity_records"))
	assert.True(t, db.Migrator().HasTable("apples"))
	assert.True(t, db.Migrator().HasIndex(&models.IdentityRecord{}, "uniq_identity_records_live_email"))
}

func TestRegisteredMigrations(t *testing.T) {
	ms := GetMigrations()
	require.GreaterOrEqual(t, len(ms), 3)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "identity_records", ms[0].Name)
	assert.Contains(t, ms[0].UpScript, "CREATE TABLE IF NOT EXISTS identity_records")
	assert.Contains(t, ms[0].DownScript, "DROP TABLE IF EXISTS identity_records")
	assert.Equal(t, "000002_apples", ms[1].String())

	assert.NotNil(t, GetMigrationByVersion(2))
	live := GetMigrationByVersion(3)
	require.NotNil(t, live)
	assert.Contains(t, live.UpScript, "uniq_identity_records_live_email")
	assert.Contains(t, live.UpScript, "WHERE state <> 'rejected'")
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestValidateAppliedVersions(t *testing.T) {
	assert.NoError(t, validateAppliedVersions(nil, GetMigrations()))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, GetMigrations()))

	err := validateAppliedVersions([]int{1, 42}, GetMigrations())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000042")
}

func TestGetSchemaStatus_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	status, err := GetSchemaStatus(context.Background(), db, &config.Config{StoreDriver: config.StoreDriverSQLite, Env: "test"})
	require.NoError(t, err)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
	assert.Equal(t, SchemaModeHybrid, status.Mode)
}
