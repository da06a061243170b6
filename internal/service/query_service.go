package service

import (
	"context"
	"time"

	"appleverse/internal/models"
	"appleverse/internal/repository"
)

// QueryService exposes the three lifecycle partitions to the admin UI.
type QueryService struct {
	store        repository.CredentialStore
	storeTimeout time.Duration
}

func NewQueryService(store repository.CredentialStore, storeTimeout time.Duration) *QueryService {
	return &QueryService{store: store, storeTimeout: storeTimeout}
}

func (s *QueryService) ListPending(ctx context.Context) ([]models.IdentityRecord, error) {
	return s.list(ctx, models.StatePending)
}

func (s *QueryService) ListActive(ctx context.Context) ([]models.IdentityRecord, error) {
	return s.list(ctx, models.StateActive)
}

func (s *QueryService) ListRejected(ctx context.Context) ([]models.IdentityRecord, error) {
	return s.list(ctx, models.StateRejected)
}

func (s *QueryService) list(ctx context.Context, state models.LifecycleState) ([]models.IdentityRecord, error) {
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}
	return s.store.ListAll(ctx, state)
}
