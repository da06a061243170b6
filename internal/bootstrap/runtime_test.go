package bootstrap

import (
	"context"
	"testing"

	"appleverse/internal/config"
	"appleverse/internal/models"
	"appleverse/internal/repository"
	"appleverse/internal/security"
	"appleverse/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureMainAdmin(t *testing.T) {
	store := repository.NewCredentialStore(testutil.NewSQLiteDB(t))
	hasher := security.NewBcryptHasher(4)
	ctx := context.Background()

	rec, err := EnsureMainAdmin(ctx, store, hasher, "Main Admin", " Root@Appleverse.test ", "root-pass")
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, rec.State)
	assert.Equal(t, "root@appleverse.test", rec.Email)
	assert.True(t, hasher.Verify("root-pass", rec.SecretHash))

	again, err := EnsureMainAdmin(ctx, store, hasher, "Main Admin", "root@appleverse.test", "other-pass")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID, "existing admin is kept")
	assert.True(t, hasher.Verify("root-pass", again.SecretHash))

	active, err := store.ListAll(ctx, models.StateActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEnsureMainAdmin_ApprovesPending(t *testing.T) {
	store := repository.NewCredentialStore(testutil.NewSQLiteDB(t))
	hasher := security.NewBcryptHasher(4)
	ctx := context.Background()

	hash, err := hasher.Hash("pending-pass")
	require.NoError(t, err)
	id, err := store.Insert(ctx, models.StatePending, &models.IdentityRecord{Email: "boss@appleverse.test", SecretHash: hash})
	require.NoError(t, err)

	rec, err := EnsureMainAdmin(ctx, store, hasher, "", "boss@appleverse.test", "ignored")
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, models.StateActive, rec.State)
}

func TestEnsureMainAdmin_RequiresCredentials(t *testing.T) {
	store := repository.NewCredentialStore(testutil.NewSQLiteDB(t))
	_, err := EnsureMainAdmin(context.Background(), store, security.NewBcryptHasher(4), "", "", "")
	assert.Error(t, err)
}

func TestInitRuntime_SQLite(t *testing.T) {
	cfg := &config.Config{
		StoreDriver:        config.StoreDriverSQLite,
		DBSQLitePath:       t.TempDir() + "/runtime.db",
		DBSchemaMode:       "auto",
		Env:                "test",
		RedisURL:           "127.0.0.1:1",
		BcryptCost:         4,
		BootstrapMainAdmin: true,
		MainAdminName:      "Main Admin",
		MainAdminEmail:     "main@appleverse.test",
		MainAdminPassword:  "main-pass",
	}

	rt, err := InitRuntime(context.Background(), cfg, Options{EnsureMainAdmin: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	assert.NotNil(t, rt.DB)
	assert.Nil(t, rt.Redis, "unreachable redis leaves a nil client")

	rec, err := rt.Store.FindByEmail(context.Background(), models.StateActive, "main@appleverse.test")
	require.NoError(t, err)
	assert.Equal(t, "Main Admin", rec.Name)
}
