package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"appleverse/internal/middleware"
	"appleverse/internal/models"
	"appleverse/internal/repository"
	"appleverse/internal/security"
)

const defaultPassword = "appleverse-demo"

// Result reports what a seeding run produced.
type Result struct {
	PendingIDs []string
	AppleIDs   []string
}

// Seed populates the signup queue and the apple catalog with demo data.
// Records go straight to the stores so no reviewer notifications are sent.
func Seed(ctx context.Context, store repository.CredentialStore, apples repository.AppleRepository, hasher security.SecretHasher, opts Options) (*Result, error) {
	start := time.Now()
	middleware.Logger.Info("starting demo seeding",
		slog.Int("pending", opts.NumPending), slog.Int("apples", opts.NumApples), slog.Bool("dry_run", opts.DryRun))

	f := NewFactory(opts)
	res := &Result{}

	password := opts.Password
	if password == "" {
		password = defaultPassword
	}
	hash := ""
	if opts.NumPending > 0 && !opts.DryRun {
		var err error
		if hash, err = hasher.Hash(password); err != nil {
			return nil, fmt.Errorf("hash seed password: %w", err)
		}
	}

	for i := 0; i < opts.NumPending; i++ {
		name, dob, email := f.SignupRequest()
		if opts.DryRun {
			res.PendingIDs = append(res.PendingIDs, email)
			continue
		}
		id, err := store.Insert(ctx, models.StatePending, &models.IdentityRecord{
			Name:        name,
			DateOfBirth: dob,
			Email:       email,
			SecretHash:  hash,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pending request: %w", err)
		}
		res.PendingIDs = append(res.PendingIDs, id)
	}

	for i := 0; i < opts.NumApples; i++ {
		apple := f.Apple()
		if !opts.DryRun {
			if err := apples.Create(ctx, apple); err != nil {
				return nil, fmt.Errorf("failed to create apple %s: %w", apple.Accession, err)
			}
		}
		res.AppleIDs = append(res.AppleIDs, apple.ID)
	}

	middleware.Logger.Info("demo seeding completed",
		slog.Int("pending", len(res.PendingIDs)), slog.Int("apples", len(res.AppleIDs)),
		slog.Duration("took", time.Since(start)))
	return res, nil
}
