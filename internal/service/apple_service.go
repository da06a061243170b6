package service

import (
	"context"
	"strings"
	"time"

	"appleverse/internal/cache"
	"appleverse/internal/models"
	"appleverse/internal/repository"
	"appleverse/internal/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AppleService serves the public catalog with Redis cache-aside on reads.
type AppleService struct {
	repo repository.AppleRepository
	rdb  *redis.Client
}

// AppleInput is the writable part of a catalog record.
type AppleInput struct {
	Acno           string         `json:"acno"`
	Accession      string         `json:"accession"`
	CultivarName   string         `json:"cultivar_name"`
	OriginCountry  string         `json:"origin_country"`
	OriginProvince string         `json:"origin_province"`
	OriginCity     string         `json:"origin_city"`
	Genus          string         `json:"genus"`
	Species        string         `json:"species"`
	Images         []string       `json:"images"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// NewAppleService creates an AppleService. A nil Redis client disables caching.
func NewAppleService(repo repository.AppleRepository, rdb *redis.Client) *AppleService {
	return &AppleService{repo: repo, rdb: rdb}
}

// List returns the catalog, filtered by a cultivar name substring when search is set.
func (s *AppleService) List(ctx context.Context, search string) ([]models.Apple, error) {
	search = strings.TrimSpace(search)
	var apples []models.Apple
	if search == "" {
		err := cache.Aside(ctx, s.rdb, cache.AppleListKey, &apples, cache.AppleListTTL, func() error {
			var err error
			apples, err = s.repo.List(ctx)
			return err
		})
		return apples, err
	}

	key := cache.AppleSearchKey(strings.ToLower(search))
	err := cache.Aside(ctx, s.rdb, key, &apples, cache.AppleListTTL, func() error {
		var err error
		apples, err = s.repo.Search(ctx, search)
		return err
	})
	return apples, err
}

// Get returns one catalog record.
func (s *AppleService) Get(ctx context.Context, id string) (*models.Apple, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, models.NewValidationError("id is required")
	}
	var apple *models.Apple
	err := cache.Aside(ctx, s.rdb, cache.AppleKey(id), &apple, cache.AppleTTL, func() error {
		var err error
		apple, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return apple, nil
}

// Create adds a catalog record. Its ID is the lower-cased accession, or a UUID without one.
func (s *AppleService) Create(ctx context.Context, in AppleInput) (*models.Apple, error) {
	if err := validateAppleInput(in); err != nil {
		return nil, err
	}

	apple := &models.Apple{}
	applyAppleInput(apple, in)
	if apple.Accession != "" {
		apple.ID = strings.ToLower(apple.Accession)
	} else {
		apple.ID = uuid.NewString()
	}

	if err := s.repo.Create(ctx, apple); err != nil {
		return nil, err
	}
	cache.InvalidateApples(ctx, s.rdb, apple.ID)
	return apple, nil
}

// Update replaces the writable fields of an existing record.
func (s *AppleService) Update(ctx context.Context, id string, in AppleInput) (*models.Apple, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, models.NewValidationError("id is required")
	}
	if err := validateAppleInput(in); err != nil {
		return nil, err
	}

	apple, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyAppleInput(apple, in)
	apple.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, apple); err != nil {
		return nil, err
	}
	cache.InvalidateApples(ctx, s.rdb, id)
	return apple, nil
}

// Delete removes a catalog record.
func (s *AppleService) Delete(ctx context.Context, id string) error {
	id = strings.ToLower(strings.TrimSpace(id))
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	cache.InvalidateApples(ctx, s.rdb, id)
	return nil
}

func validateAppleInput(in AppleInput) error {
	if err := validation.ValidateCultivarName(in.CultivarName); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateAccession(strings.TrimSpace(in.Accession)); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

func applyAppleInput(apple *models.Apple, in AppleInput) {
	apple.Acno = strings.TrimSpace(in.Acno)
	apple.Accession = strings.TrimSpace(in.Accession)
	apple.CultivarName = strings.TrimSpace(in.CultivarName)
	apple.OriginCountry = strings.TrimSpace(in.OriginCountry)
	apple.OriginProvince = strings.TrimSpace(in.OriginProvince)
	apple.OriginCity = strings.TrimSpace(in.OriginCity)
	apple.Genus = strings.TrimSpace(in.Genus)
	apple.Species = strings.TrimSpace(in.Species)
	apple.Images = in.Images
	if apple.Images == nil {
		apple.Images = []string{}
	}
	apple.Extra = in.Extra
}
