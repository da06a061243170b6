package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"appleverse/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const appleCollection = "apples"

type mongoAppleRepository struct {
	coll *mongo.Collection
}

// NewMongoAppleRepository returns an AppleRepository backed by a MongoDB collection.
func NewMongoAppleRepository(db *mongo.Database) AppleRepository {
	return &mongoAppleRepository{coll: db.Collection(appleCollection)}
}

var appleSort = bson.D{{Key: "cultivar_name", Value: 1}, {Key: "_id", Value: 1}}

func (r *mongoAppleRepository) find(ctx context.Context, filter bson.M) ([]models.Apple, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(appleSort))
	if err != nil {
		return nil, storeError(err)
	}
	apples := make([]models.Apple, 0)
	if err := cursor.All(ctx, &apples); err != nil {
		return nil, storeError(err)
	}
	return apples, nil
}

func (r *mongoAppleRepository) List(ctx context.Context) ([]models.Apple, error) {
	return r.find(ctx, bson.M{})
}

func (r *mongoAppleRepository) Search(ctx context.Context, term string) ([]models.Apple, error) {
	return r.find(ctx, bson.M{"cultivar_name": bson.M{
		"$regex":   regexp.QuoteMeta(term),
		"$options": "i",
	}})
}

func (r *mongoAppleRepository) GetByID(ctx context.Context, id string) (*models.Apple, error) {
	var apple models.Apple
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&apple); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("Apple", id)
		}
		return nil, storeError(err)
	}
	return &apple, nil
}

func (r *mongoAppleRepository) Create(ctx context.Context, apple *models.Apple) error {
	now := time.Now().UTC()
	apple.CreatedAt = now
	apple.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, apple); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.NewValidationError("Apple with this accession already exists")
		}
		return storeError(err)
	}
	return nil
}

func (r *mongoAppleRepository) Update(ctx context.Context, apple *models.Apple) error {
	apple.UpdatedAt = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": apple.ID}, bson.M{"$set": bson.M{
		"acno":            apple.Acno,
		"accession":       apple.Accession,
		"cultivar_name":   apple.CultivarName,
		"origin_country":  apple.OriginCountry,
		"origin_province": apple.OriginProvince,
		"origin_city":     apple.OriginCity,
		"genus":           apple.Genus,
		"species":         apple.Species,
		"images":          apple.Images,
		"extra":           apple.Extra,
		"updated_at":      apple.UpdatedAt,
	}})
	if err != nil {
		return storeError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Apple", apple.ID)
	}
	return nil
}

func (r *mongoAppleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeError(err)
	}
	if res.DeletedCount == 0 {
		return models.NewNotFoundError("Apple", id)
	}
	return nil
}
