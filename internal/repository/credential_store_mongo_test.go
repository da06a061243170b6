package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"appleverse/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// newMongoStore connects to MONGO_TEST_URI (a replica set) or skips.
func newMongoStore(t *testing.T) CredentialStore {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set; skipping MongoDB credential store tests")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database("appleverse_test_" + uuid.NewString()[:8])
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, EnsureIdentityIndexes(ctx, db))

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return NewMongoCredentialStore(client, db)
}

func TestMongoCredentialStore_Lifecycle(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()

	id := insertRecord(t, store, models.StatePending, "mongo@example.com")

	moved, prior, err := store.Move(ctx, id, []models.LifecycleState{models.StatePending}, models.StateActive)
	require.NoError(t, err)
	require.Equal(t, models.StatePending, prior)
	require.Equal(t, id, moved.ID)

	_, _, err = store.Move(ctx, id, []models.LifecycleState{models.StatePending}, models.StateRejected)
	assertCode(t, err, models.CodeNotFound)

	require.NoError(t, store.UpdateSecretHash(ctx, models.StateActive, "mongo@example.com", "$2a$04$new"))

	active, err := store.ListAll(ctx, models.StateActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "$2a$04$new", active[0].SecretHash)

	dupID := insertRecord(t, store, models.StateRejected, "mongo@example.com")
	_, _, err = store.Move(ctx, dupID, []models.LifecycleState{models.StateRejected}, models.StateActive)
	assertCode(t, err, models.CodeValidation)

	require.NoError(t, store.Ping(ctx))
}
