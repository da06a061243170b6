package repository

import (
	"context"
	"errors"
	"strings"

	"appleverse/internal/models"

	"gorm.io/gorm"
)

// AppleRepository defines persistence operations for catalog records.
type AppleRepository interface {
	List(ctx context.Context) ([]models.Apple, error)
	Search(ctx context.Context, term string) ([]models.Apple, error)
	GetByID(ctx context.Context, id string) (*models.Apple, error)
	Create(ctx context.Context, apple *models.Apple) error
	Update(ctx context.Context, apple *models.Apple) error
	Delete(ctx context.Context, id string) error
}

type appleRepository struct {
	db *gorm.DB
}

// NewAppleRepository returns a new AppleRepository implementation.
func NewAppleRepository(db *gorm.DB) AppleRepository {
	return &appleRepository{db: db}
}

func (r *appleRepository) List(ctx context.Context) ([]models.Apple, error) {
	apples := make([]models.Apple, 0)
	if err := r.db.WithContext(ctx).Order("cultivar_name ASC").Order("id ASC").Find(&apples).Error; err != nil {
		return nil, storeError(err)
	}
	return apples, nil
}

// Search matches cultivar names case-insensitively on a substring.
func (r *appleRepository) Search(ctx context.Context, term string) ([]models.Apple, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	apples := make([]models.Apple, 0)
	if err := r.db.WithContext(ctx).
		Where("LOWER(cultivar_name) LIKE ? ESCAPE '\\'", pattern).
		Order("cultivar_name ASC").Order("id ASC").
		Find(&apples).Error; err != nil {
		return nil, storeError(err)
	}
	return apples, nil
}

func (r *appleRepository) GetByID(ctx context.Context, id string) (*models.Apple, error) {
	var apple models.Apple
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&apple).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Apple", id)
		}
		return nil, storeError(err)
	}
	return &apple, nil
}

func (r *appleRepository) Create(ctx context.Context, apple *models.Apple) error {
	if err := r.db.WithContext(ctx).Create(apple).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("Apple with this accession already exists")
		}
		return storeError(err)
	}
	return nil
}

func (r *appleRepository) Update(ctx context.Context, apple *models.Apple) error {
	res := r.db.WithContext(ctx).Model(&models.Apple{}).Where("id = ?", apple.ID).
		Select("acno", "accession", "cultivar_name", "origin_country", "origin_province",
			"origin_city", "genus", "species", "images", "extra", "updated_at").
		Updates(apple)
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Apple", apple.ID)
	}
	return nil
}

func (r *appleRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Apple{})
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Apple", id)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
