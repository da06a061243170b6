// Package bootstrap connects the configured backends and ensures the main admin exists.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"appleverse/internal/cache"
	"appleverse/internal/config"
	"appleverse/internal/database"
	"appleverse/internal/middleware"
	"appleverse/internal/models"
	"appleverse/internal/repository"
	"appleverse/internal/security"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// EnsureMainAdmin runs the main admin bootstrap when BOOTSTRAP_MAIN_ADMIN is set.
	EnsureMainAdmin bool
}

// Runtime holds the connected backends.
type Runtime struct {
	DB          *gorm.DB
	MongoClient *mongo.Client
	MongoDB     *mongo.Database
	Redis       *redis.Client
	Store       repository.CredentialStore
	Apples      repository.AppleRepository
}

// InitRuntime connects to the configured store and Redis.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{}

	if cfg.StoreDriver == config.StoreDriverMongo {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, db, err := database.ConnectMongo(cctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		if err := repository.EnsureIdentityIndexes(cctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		rt.MongoClient, rt.MongoDB = client, db
		rt.Store = repository.NewMongoCredentialStore(client, db)
		rt.Apples = repository.NewMongoAppleRepository(db)
	} else {
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.DB = db
		rt.Store = repository.NewCredentialStore(db)
		rt.Apples = repository.NewAppleRepository(db)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()

	if opts.EnsureMainAdmin && cfg.BootstrapMainAdmin {
		hasher := security.NewBcryptHasher(cfg.BcryptCost)
		if _, err := EnsureMainAdmin(ctx, rt.Store, hasher, cfg.MainAdminName, cfg.MainAdminEmail, cfg.MainAdminPassword); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to bootstrap main admin: %w", err)
		}
	}

	return rt, nil
}

// Close releases every backend the runtime opened.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.DB != nil {
		errs = append(errs, database.Close(rt.DB))
	}
	if rt.MongoClient != nil {
		errs = append(errs, rt.MongoClient.Disconnect(ctx))
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	return errors.Join(errs...)
}

// EnsureMainAdmin makes sure an active admin with email exists.
// A pending request for the email is approved; otherwise a new active record is created.
// An already active admin is left untouched.
func EnsureMainAdmin(ctx context.Context, store repository.CredentialStore, hasher security.SecretHasher, name, email, password string) (*models.IdentityRecord, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, errors.New("main admin email and password are required")
	}

	existing, err := store.FindByEmail(ctx, models.StateActive, email)
	if err == nil {
		middleware.Logger.Info("main admin already active", slog.String("record_id", existing.ID))
		return existing, nil
	}
	if !models.HasCode(err, models.CodeNotFound) {
		return nil, err
	}

	pending, err := store.FindByEmail(ctx, models.StatePending, email)
	switch {
	case err == nil:
		rec, _, err := store.Move(ctx, pending.ID, []models.LifecycleState{models.StatePending}, models.StateActive)
		if err != nil {
			return nil, err
		}
		middleware.Logger.Info("main admin approved from pending request", slog.String("record_id", rec.ID))
		return rec, nil
	case !models.HasCode(err, models.CodeNotFound):
		return nil, err
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash main admin password: %w", err)
	}
	rec := &models.IdentityRecord{
		Name:       strings.TrimSpace(name),
		Email:      email,
		SecretHash: hash,
	}
	if _, err := store.Insert(ctx, models.StateActive, rec); err != nil {
		return nil, err
	}
	middleware.Logger.Info("main admin created", slog.String("record_id", rec.ID), slog.String("email", email))
	return rec, nil
}
