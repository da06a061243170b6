package service

import (
	"context"
	"testing"
	"time"

	"appleverse/internal/cache"
	"appleverse/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSessionService_VerifyAndLogout(t *testing.T) {
	f := newLifecycleFixture(t)
	mr, rdb := newTestRedis(t)
	sessions := NewSessionService(f.store, f.issuer, rdb, time.Second)
	ctx := context.Background()

	rec := f.submit(t, "lee@example.com")
	_, err := f.svc.Approve(ctx, rec.ID)
	require.NoError(t, err)
	res, err := f.svc.Login(ctx, "lee@example.com", "correct horse")
	require.NoError(t, err)

	adminID, err := sessions.VerifySession(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, adminID)

	require.NoError(t, sessions.Logout(ctx, res.Token))
	claims, err := f.issuer.Parse(res.Token)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.BlacklistKey(claims.ID)))
	ttl := mr.TTL(cache.BlacklistKey(claims.ID))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	_, err = sessions.VerifySession(ctx, res.Token)
	assertCode(t, err, models.CodeUnauthorized)
}

func TestSessionService_RevokedAdminLosesAccess(t *testing.T) {
	f := newLifecycleFixture(t)
	_, rdb := newTestRedis(t)
	sessions := NewSessionService(f.store, f.issuer, rdb, time.Second)
	ctx := context.Background()

	rec := f.submit(t, "max@example.com")
	_, err := f.svc.Approve(ctx, rec.ID)
	require.NoError(t, err)
	res, err := f.svc.Login(ctx, "max@example.com", "correct horse")
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, rec.ID)
	require.NoError(t, err)

	_, err = sessions.VerifySession(ctx, res.Token)
	assertCode(t, err, models.CodeUnauthorized)
}

func TestSessionService_RejectsGarbageAndRedisOutage(t *testing.T) {
	f := newLifecycleFixture(t)
	mr, rdb := newTestRedis(t)
	sessions := NewSessionService(f.store, f.issuer, rdb, time.Second)
	ctx := context.Background()

	_, err := sessions.VerifySession(ctx, "not-a-token")
	assertCode(t, err, models.CodeUnauthorized)
	assertCode(t, sessions.Logout(ctx, "not-a-token"), models.CodeUnauthorized)

	session, err := f.issuer.Issue("some-id", "x@example.com")
	require.NoError(t, err)
	mr.Close()
	_, err = sessions.VerifySession(ctx, session.Token)
	assertCode(t, err, models.CodeStorageUnavailable)
}

func TestSessionService_NoRedis(t *testing.T) {
	f := newLifecycleFixture(t)
	sessions := NewSessionService(f.store, f.issuer, nil, 0)
	ctx := context.Background()

	rec := f.submit(t, "ned@example.com")
	_, err := f.svc.Approve(ctx, rec.ID)
	require.NoError(t, err)
	session, err := f.issuer.Issue(rec.ID, rec.Email)
	require.NoError(t, err)

	id, err := sessions.VerifySession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, id)
	assertCode(t, sessions.Logout(ctx, session.Token), models.CodeStorageUnavailable)
}

func TestQueryService_Partitions(t *testing.T) {
	f := newLifecycleFixture(t)
	q := NewQueryService(f.store, time.Second)
	ctx := context.Background()

	a := f.submit(t, "a@example.com")
	b := f.submit(t, "b@example.com")
	c := f.submit(t, "c@example.com")
	_, err := f.svc.Approve(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.svc.Deny(ctx, c.ID)
	require.NoError(t, err)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	active, err := q.ListActive(ctx)
	require.NoError(t, err)
	rejected, err := q.ListRejected(ctx)
	require.NoError(t, err)

	require.Len(t, pending, 1)
	require.Len(t, active, 1)
	require.Len(t, rejected, 1)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, b.ID, active[0].ID)
	assert.Equal(t, c.ID, rejected[0].ID)
}
