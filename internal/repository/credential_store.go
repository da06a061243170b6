// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"appleverse/internal/models"
	"appleverse/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const identityResource = "Identity record"

// CredentialStore persists identity records partitioned by lifecycle state.
type CredentialStore interface {
	Insert(ctx context.Context, state models.LifecycleState, rec *models.IdentityRecord) (string, error)
	FindByID(ctx context.Context, state models.LifecycleState, id string) (*models.IdentityRecord, error)
	FindByEmail(ctx context.Context, state models.LifecycleState, email string) (*models.IdentityRecord, error)
	DeleteByID(ctx context.Context, state models.LifecycleState, id string) error
	ListAll(ctx context.Context, state models.LifecycleState) ([]models.IdentityRecord, error)
	// Move atomically retags a record whose current state is one of from and
	// reports the state it left. Concurrent moves of the same id have exactly
	// one winner; the others get NotFound.
	Move(ctx context.Context, id string, from []models.LifecycleState, to models.LifecycleState) (*models.IdentityRecord, models.LifecycleState, error)
	UpdateSecretHash(ctx context.Context, state models.LifecycleState, email, hash string) error
	CountByEmail(ctx context.Context, states []models.LifecycleState, email string) (int64, error)
	Ping(ctx context.Context) error
}

type gormCredentialStore struct {
	db      *gorm.DB
	dialect string
	metrics *observability.StoreMetrics
}

// NewCredentialStore returns a CredentialStore backed by GORM.
func NewCredentialStore(db *gorm.DB) CredentialStore {
	dialect := db.Dialector.Name()
	return &gormCredentialStore{
		db:      db,
		dialect: dialect,
		metrics: observability.NewStoreMetrics(dialect),
	}
}

func (s *gormCredentialStore) trace(ctx context.Context, op string) (context.Context, func(error)) {
	done := s.metrics.TrackOperation(op)
	ctx, span := observability.StartStoreSpan(ctx, s.dialect, op, "identity_records")
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		done()
	}
}

func (s *gormCredentialStore) Insert(ctx context.Context, state models.LifecycleState, rec *models.IdentityRecord) (id string, err error) {
	ctx, end := s.trace(ctx, "Insert")
	defer func() { end(err) }()

	if err := requireStates(state); err != nil {
		return "", err
	}
	if rec == nil || models.NormalizeEmail(rec.Email) == "" || rec.SecretHash == "" {
		return "", models.NewValidationError("Email and secret hash are required")
	}

	now := time.Now().UTC()
	rec.Email = models.NormalizeEmail(rec.Email)
	rec.State = state
	rec.StateChangedAt = now
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", storeError(err)
	}
	return rec.ID, nil
}

func (s *gormCredentialStore) FindByID(ctx context.Context, state models.LifecycleState, id string) (rec *models.IdentityRecord, err error) {
	ctx, end := s.trace(ctx, "FindByID")
	defer func() { end(err) }()

	var found models.IdentityRecord
	if err := s.db.WithContext(ctx).Where("id = ? AND state = ?", id, string(state)).First(&found).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError(identityResource, id)
		}
		return nil, storeError(err)
	}
	return &found, nil
}

func (s *gormCredentialStore) FindByEmail(ctx context.Context, state models.LifecycleState, email string) (rec *models.IdentityRecord, err error) {
	ctx, end := s.trace(ctx, "FindByEmail")
	defer func() { end(err) }()

	email = models.NormalizeEmail(email)
	var found models.IdentityRecord
	if err := s.db.WithContext(ctx).
		Where("email = ? AND state = ?", email, string(state)).
		Order("created_at ASC").
		First(&found).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError(identityResource, email)
		}
		return nil, storeError(err)
	}
	return &found, nil
}

func (s *gormCredentialStore) DeleteByID(ctx context.Context, state models.LifecycleState, id string) (err error) {
	ctx, end := s.trace(ctx, "DeleteByID")
	defer func() { end(err) }()

	res := s.db.WithContext(ctx).Where("id = ? AND state = ?", id, string(state)).Delete(&models.IdentityRecord{})
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(identityResource, id)
	}
	return nil
}

func (s *gormCredentialStore) ListAll(ctx context.Context, state models.LifecycleState) (recs []models.IdentityRecord, err error) {
	ctx, end := s.trace(ctx, "ListAll")
	defer func() { end(err) }()

	records := make([]models.IdentityRecord, 0)
	if err := s.db.WithContext(ctx).
		Where("state = ?", string(state)).
		Order("created_at ASC").Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, storeError(err)
	}
	return records, nil
}

func (s *gormCredentialStore) Move(ctx context.Context, id string, from []models.LifecycleState, to models.LifecycleState) (rec *models.IdentityRecord, prior models.LifecycleState, err error) {
	ctx, end := s.trace(ctx, "Move")
	defer func() { end(err) }()

	if err := requireStates(append([]models.LifecycleState{to}, from...)...); err != nil {
		return nil, "", err
	}

	var moved models.IdentityRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if s.dialect == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("id = ? AND state IN ?", id, stateStrings(from)).First(&moved).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError(identityResource, id)
			}
			return err
		}

		prior = moved.State
		if to.Live() {
			var holders int64
			if err := tx.Model(&models.IdentityRecord{}).
				Where("email = ? AND state IN ? AND id <> ?", moved.Email, stateStrings(models.LiveStates), id).
				Count(&holders).Error; err != nil {
				return err
			}
			if holders > 0 {
				return models.NewValidationError(emailInUseMessage)
			}
		}

		now := time.Now().UTC()
		res := tx.Model(&models.IdentityRecord{}).
			Where("id = ? AND state = ?", id, string(moved.State)).
			Updates(map[string]any{
				"state":            string(to),
				"state_changed_at": now,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError(identityResource, id)
		}

		moved.State = to
		moved.StateChangedAt = now
		moved.UpdatedAt = now
		return nil
	})
	if txErr != nil {
		return nil, "", storeError(txErr)
	}
	return &moved, prior, nil
}

func (s *gormCredentialStore) UpdateSecretHash(ctx context.Context, state models.LifecycleState, email, hash string) (err error) {
	ctx, end := s.trace(ctx, "UpdateSecretHash")
	defer func() { end(err) }()

	if hash == "" {
		return models.NewValidationError("Secret hash is required")
	}
	email = models.NormalizeEmail(email)
	res := s.db.WithContext(ctx).Model(&models.IdentityRecord{}).
		Where("email = ? AND state = ?", email, string(state)).
		Updates(map[string]any{
			"secret_hash": hash,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(identityResource, email)
	}
	return nil
}

func (s *gormCredentialStore) CountByEmail(ctx context.Context, states []models.LifecycleState, email string) (n int64, err error) {
	ctx, end := s.trace(ctx, "CountByEmail")
	defer func() { end(err) }()

	if err := requireStates(states...); err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.IdentityRecord{}).
		Where("email = ? AND state IN ?", models.NormalizeEmail(email), stateStrings(states)).
		Count(&count).Error; err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

func (s *gormCredentialStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeError(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeError(err)
	}
	return nil
}
