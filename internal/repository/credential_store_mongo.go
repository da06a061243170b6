package repository

import (
	"context"
	"errors"
	"time"

	"appleverse/internal/models"
	"appleverse/internal/observability"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const identityCollection = "identity_records"

type mongoCredentialStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	metrics *observability.StoreMetrics
}

// NewMongoCredentialStore returns a CredentialStore backed by a MongoDB collection.
func NewMongoCredentialStore(client *mongo.Client, db *mongo.Database) CredentialStore {
	return &mongoCredentialStore{
		client:  client,
		coll:    db.Collection(identityCollection),
		metrics: observability.NewStoreMetrics("mongodb"),
	}
}

// legacyActiveEmailIndex only covered active records; EnsureIdentityIndexes replaces it.
const legacyActiveEmailIndex = "uniq_active_email"

// Server error codes returned when the legacy index or the collection is absent.
const (
	namespaceNotFound = 26
	indexNotFound     = 27
)

// EnsureIdentityIndexes creates the lookup indexes and the partial unique index
// that allows at most one pending or active record per email. Partial filters
// with $in need MongoDB 6.0 or newer.
func EnsureIdentityIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := db.Collection(identityCollection).Indexes()
	if err := indexes.DropOne(ctx, legacyActiveEmailIndex); err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || (cmdErr.Code != indexNotFound && cmdErr.Code != namespaceNotFound) {
			return err
		}
	}
	_, err := indexes.CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "state", Value: 1}}},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("uniq_live_email").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"state": bson.M{"$in": stateStrings(models.LiveStates)}}),
		},
	})
	return err
}

func (s *mongoCredentialStore) trace(ctx context.Context, op string) (context.Context, func(error)) {
	done := s.metrics.TrackOperation(op)
	ctx, span := observability.StartStoreSpan(ctx, "mongodb", op, identityCollection)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		done()
	}
}

func (s *mongoCredentialStore) Insert(ctx context.Context, state models.LifecycleState, rec *models.IdentityRecord) (id string, err error) {
	ctx, end := s.trace(ctx, "Insert")
	defer func() { end(err) }()

	if err := requireStates(state); err != nil {
		return "", err
	}
	if rec == nil || models.NormalizeEmail(rec.Email) == "" || rec.SecretHash == "" {
		return "", models.NewValidationError("Email and secret hash are required")
	}

	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Email = models.NormalizeEmail(rec.Email)
	rec.State = state
	rec.StateChangedAt = now
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return "", storeError(err)
	}
	return rec.ID, nil
}

func (s *mongoCredentialStore) findOne(ctx context.Context, filter bson.M, key string) (*models.IdentityRecord, error) {
	var found models.IdentityRecord
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&found); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError(identityResource, key)
		}
		return nil, storeError(err)
	}
	return &found, nil
}

func (s *mongoCredentialStore) FindByID(ctx context.Context, state models.LifecycleState, id string) (rec *models.IdentityRecord, err error) {
	ctx, end := s.trace(ctx, "FindByID")
	defer func() { end(err) }()
	return s.findOne(ctx, bson.M{"_id": id, "state": string(state)}, id)
}

func (s *mongoCredentialStore) FindByEmail(ctx context.Context, state models.LifecycleState, email string) (rec *models.IdentityRecord, err error) {
	ctx, end := s.trace(ctx, "FindByEmail")
	defer func() { end(err) }()
	email = models.NormalizeEmail(email)
	return s.findOne(ctx, bson.M{"email": email, "state": string(state)}, email)
}

func (s *mongoCredentialStore) DeleteByID(ctx context.Context, state models.LifecycleState, id string) (err error) {
	ctx, end := s.trace(ctx, "DeleteByID")
	defer func() { end(err) }()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "state": string(state)})
	if err != nil {
		return storeError(err)
	}
	if res.DeletedCount == 0 {
		return models.NewNotFoundError(identityResource, id)
	}
	return nil
}

func (s *mongoCredentialStore) ListAll(ctx context.Context, state models.LifecycleState) (recs []models.IdentityRecord, err error) {
	ctx, end := s.trace(ctx, "ListAll")
	defer func() { end(err) }()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{"state": string(state)}, opts)
	if err != nil {
		return nil, storeError(err)
	}
	records := make([]models.IdentityRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, storeError(err)
	}
	return records, nil
}

func (s *mongoCredentialStore) Move(ctx context.Context, id string, from []models.LifecycleState, to models.LifecycleState) (rec *models.IdentityRecord, prior models.LifecycleState, err error) {
	ctx, end := s.trace(ctx, "Move")
	defer func() { end(err) }()

	if err := requireStates(append([]models.LifecycleState{to}, from...)...); err != nil {
		return nil, "", err
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, "", storeError(err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		var current models.IdentityRecord
		filter := bson.M{"_id": id, "state": bson.M{"$in": stateStrings(from)}}
		if err := s.coll.FindOne(txCtx, filter).Decode(&current); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, models.NewNotFoundError(identityResource, id)
			}
			return nil, err
		}

		prior = current.State
		if to.Live() {
			holders, err := s.coll.CountDocuments(txCtx, bson.M{
				"email": current.Email,
				"state": bson.M{"$in": stateStrings(models.LiveStates)},
				"_id":   bson.M{"$ne": id},
			})
			if err != nil {
				return nil, err
			}
			if holders > 0 {
				return nil, models.NewValidationError(emailInUseMessage)
			}
		}

		now := time.Now().UTC()
		res, err := s.coll.UpdateOne(txCtx,
			bson.M{"_id": id, "state": string(current.State)},
			bson.M{"$set": bson.M{
				"state":            string(to),
				"state_changed_at": now,
				"updated_at":       now,
			}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, models.NewNotFoundError(identityResource, id)
		}

		current.State = to
		current.StateChangedAt = now
		current.UpdatedAt = now
		return &current, nil
	})
	if err != nil {
		return nil, "", storeError(err)
	}
	moved, ok := result.(*models.IdentityRecord)
	if !ok {
		return nil, "", models.NewInternalError(errors.New("unexpected transaction result"))
	}
	return moved, prior, nil
}

func (s *mongoCredentialStore) UpdateSecretHash(ctx context.Context, state models.LifecycleState, email, hash string) (err error) {
	ctx, end := s.trace(ctx, "UpdateSecretHash")
	defer func() { end(err) }()

	if hash == "" {
		return models.NewValidationError("Secret hash is required")
	}
	email = models.NormalizeEmail(email)
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"email": email, "state": string(state)},
		bson.M{"$set": bson.M{"secret_hash": hash, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return storeError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError(identityResource, email)
	}
	return nil
}

func (s *mongoCredentialStore) CountByEmail(ctx context.Context, states []models.LifecycleState, email string) (n int64, err error) {
	ctx, end := s.trace(ctx, "CountByEmail")
	defer func() { end(err) }()

	if err := requireStates(states...); err != nil {
		return 0, err
	}
	count, err := s.coll.CountDocuments(ctx, bson.M{
		"email": models.NormalizeEmail(email),
		"state": bson.M{"$in": stateStrings(states)},
	})
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

func (s *mongoCredentialStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return storeError(err)
	}
	return nil
}
