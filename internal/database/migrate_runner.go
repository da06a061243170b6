package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"appleverse/internal/middleware"

	"gorm.io/gorm"
)

// MigrationLog is one row of migration_logs: a version that has been applied.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for MigrationLog.
func (MigrationLog) TableName() string {
	return "migration_logs"
}

var migrationLogDDL = []string{
	`CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_migration_logs_applied_at ON migration_logs (applied_at)`,
}

// Migrator applies versioned SQL migrations. Each script runs in the same
// transaction as its migration_logs row, so a failed script leaves no record.
type Migrator struct {
	db         *gorm.DB
	registered []Migration
}

// NewMigrator returns a Migrator over the embedded migrations.
func NewMigrator(db *gorm.DB) *Migrator {
	return newMigrator(db, GetMigrations())
}

func newMigrator(db *gorm.DB, registered []Migration) *Migrator {
	sorted := slices.Clone(registered)
	slices.SortFunc(sorted, func(a, b Migration) int { return a.Version - b.Version })
	return &Migrator{db: db, registered: sorted}
}

func (m *Migrator) ensureLog(ctx context.Context) error {
	for _, stmt := range migrationLogDDL {
		if err := m.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to ensure migration logs table: %w", err)
		}
	}
	return nil
}

// AppliedVersions lists recorded versions in ascending order. A missing log table reads as empty.
func (m *Migrator) AppliedVersions(ctx context.Context) ([]int, error) {
	var versions []int
	err := m.db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error
	if err != nil {
		if isMissingTableError(err) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return versions, nil
}

// Pending returns the registered migrations not yet recorded, oldest first.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateAppliedVersions(applied, m.registered); err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range m.registered {
		if !slices.Contains(applied, mig.Version) {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration in version order and reports how many ran.
// It stops at the first failure; migrations before it stay applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureLog(ctx); err != nil {
		return 0, err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mig := range pending {
		start := time.Now()
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.UpScript).Error; err != nil {
				return err
			}
			return tx.Create(&MigrationLog{Version: mig.Version, Name: mig.Name}).Error
		})
		if err != nil {
			return i, fmt.Errorf("failed to apply migration %s: %w", mig.String(), err)
		}
		middleware.Logger.Info("Migration applied",
			slog.String("migration", mig.String()),
			slog.Duration("took", time.Since(start)))
	}
	if len(pending) == 0 {
		middleware.Logger.Debug("No pending migrations")
	}
	return len(pending), nil
}

// Down reverts one applied migration and drops its log row in a single transaction.
func (m *Migrator) Down(ctx context.Context, version int) error {
	idx := slices.IndexFunc(m.registered, func(mig Migration) bool { return mig.Version == version })
	if idx < 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	mig := m.registered[idx]

	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.DownScript).Error; err != nil {
			return err
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration %s: %w", mig.String(), err)
	}
	middleware.Logger.Info("Migration rolled back", slog.String("migration", mig.String()))
	return nil
}

// RunMigrations applies all pending embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	_, err := NewMigrator(db).Up(ctx)
	return err
}

// RollbackMigration reverts a specific embedded migration by version number.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return NewMigrator(db).Down(ctx, version)
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// validateAppliedVersions refuses a log that records versions this build does not ship.
func validateAppliedVersions(applied []int, registered []Migration) error {
	var unknown []string
	for _, version := range applied {
		known := slices.ContainsFunc(registered, func(mig Migration) bool { return mig.Version == version })
		if !known {
			unknown = append(unknown, fmt.Sprintf("%06d", version))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf(
		"migration_logs contains unknown versions not present in code: %s (run `go run ./cmd/migrate status` to inspect)",
		strings.Join(unknown, ", "),
	)
}
