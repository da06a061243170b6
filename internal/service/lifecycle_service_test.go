package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"appleverse/internal/models"
	"appleverse/internal/notifications"
	"appleverse/internal/repository"
	"appleverse/internal/security"
	"appleverse/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const reviewerEmail = "reviewer@appleverse.test"

type notifierStub struct {
	mu   sync.Mutex
	msgs []notifications.Message
	err  error
}

func (n *notifierStub) Notify(_ context.Context, msg notifications.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

type publisherStub struct {
	mu     sync.Mutex
	events []notifications.LifecycleEvent
}

func (p *publisherStub) PublishEvent(_ context.Context, evt notifications.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *publisherStub) operations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]string, 0, len(p.events))
	for _, e := range p.events {
		ops = append(ops, e.Operation)
	}
	return ops
}

// slowStore blocks every Move until the context is done.
type slowStore struct {
	repository.CredentialStore
}

func (s slowStore) Move(ctx context.Context, _ string, _ []models.LifecycleState, _ models.LifecycleState) (*models.IdentityRecord, models.LifecycleState, error) {
	<-ctx.Done()
	return nil, "", models.NewStorageUnavailableError(ctx.Err())
}

// countBarrierStore holds every CountByEmail until all expected callers have counted.
type countBarrierStore struct {
	repository.CredentialStore
	counted *sync.WaitGroup
}

func (s countBarrierStore) CountByEmail(ctx context.Context, states []models.LifecycleState, email string) (int64, error) {
	n, err := s.CredentialStore.CountByEmail(ctx, states, email)
	s.counted.Done()
	s.counted.Wait()
	return n, err
}

// blockingNotifier never delivers; it waits for its context to end.
type blockingNotifier struct {
	hadDeadline chan bool
}

func (n blockingNotifier) Notify(ctx context.Context, _ notifications.Message) error {
	_, ok := ctx.Deadline()
	n.hadDeadline <- ok
	<-ctx.Done()
	return models.NewDeliveryFailedError(ctx.Err())
}

type lifecycleFixture struct {
	svc       *LifecycleService
	store     repository.CredentialStore
	notifier  *notifierStub
	publisher *publisherStub
	issuer    *security.TokenIssuer
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	store := repository.NewCredentialStore(testutil.NewSQLiteDB(t))
	f := &lifecycleFixture{
		store:     store,
		notifier:  &notifierStub{},
		publisher: &publisherStub{},
		issuer:    security.NewTokenIssuer("test-secret", time.Hour),
	}
	f.svc = NewLifecycleService(store, security.NewBcryptHasher(bcrypt.MinCost), f.issuer,
		f.notifier, f.publisher, LifecycleConfig{ReviewerEmail: reviewerEmail, StoreTimeout: 2 * time.Second})
	return f
}

func (f *lifecycleFixture) submit(t *testing.T, email string) *models.IdentityRecord {
	t.Helper()
	rec, err := f.svc.Submit(context.Background(), SubmitInput{
		Name: "Ada Lovelace", DateOfBirth: "1815-12-10", Email: email, Secret: "correct horse",
	})
	require.NoError(t, err)
	return rec
}

func (f *lifecycleFixture) reject(ctx context.Context, id string) (*models.IdentityRecord, error) {
	rec, _, err := f.svc.Reject(ctx, id)
	return rec, err
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestSubmit_StoresPendingAndNotifies(t *testing.T) {
	f := newLifecycleFixture(t)
	rec := f.submit(t, " Ada@Example.com ")

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "ada@example.com", rec.Email)
	assert.NotEqual(t, "correct horse", rec.SecretHash)

	pending, err := f.store.FindByID(context.Background(), models.StatePending, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.SecretHash, pending.SecretHash)

	require.Len(t, f.notifier.msgs, 1)
	msg := f.notifier.msgs[0]
	assert.Equal(t, reviewerEmail, msg.To)
	assert.Equal(t, "New Admin Signup Request", msg.Subject)
	assert.Contains(t, msg.Body, "Name: Ada Lovelace")
	assert.Contains(t, msg.Body, "Date of Birth: 1815-12-10")
	assert.Contains(t, msg.Body, "Email: ada@example.com")

	assert.Equal(t, []string{"submit"}, f.publisher.operations())
}

func TestSubmit_Validation(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   SubmitInput
	}{
		{"missing email", SubmitInput{Secret: "pw"}},
		{"malformed email", SubmitInput{Email: "not-an-email", Secret: "pw"}},
		{"missing secret", SubmitInput{Email: "a@example.com"}},
		{"secret too long", SubmitInput{Email: "a@example.com", Secret: strings.Repeat("x", 73)}},
		{"name too long", SubmitInput{Email: "a@example.com", Secret: "pw", Name: strings.Repeat("n", 121)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tc.in)
			assertCode(t, err, models.CodeValidation)
		})
	}

	all, err := f.store.ListAll(ctx, models.StatePending)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.notifier.msgs)
}

func TestSubmit_DuplicateEmail(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	rec := f.submit(t, "dup@example.com")

	_, err := f.svc.Submit(ctx, SubmitInput{Email: "DUP@example.com", Secret: "pw"})
	assertCode(t, err, models.CodeValidation)

	_, err = f.svc.Approve(ctx, rec.ID)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, SubmitInput{Email: "dup@example.com", Secret: "pw"})
	assertCode(t, err, models.CodeValidation)

	_, err = f.svc.Revoke(ctx, rec.ID)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, SubmitInput{Email: "dup@example.com", Secret: "pw"})
	assert.NoError(t, err, "rejected history does not block a new request")
}

func TestSubmit_ConcurrentSameEmailStoresOne(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	var counted sync.WaitGroup
	counted.Add(2)
	svc := NewLifecycleService(countBarrierStore{f.store, &counted}, security.NewBcryptHasher(bcrypt.MinCost), f.issuer,
		nil, nil, LifecycleConfig{StoreTimeout: 2 * time.Second})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Submit(ctx, SubmitInput{
				Name: "Twin", DateOfBirth: "1990-01-01", Email: "twin@example.com", Secret: "pw",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assertCode(t, err, models.CodeValidation)
	}
	assert.Equal(t, 1, wins)

	pending, err := f.store.ListAll(ctx, models.StatePending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmit_SlowNotifierIsBounded(t *testing.T) {
	f := newLifecycleFixture(t)
	notifier := blockingNotifier{hadDeadline: make(chan bool, 1)}
	svc := NewLifecycleService(f.store, security.NewBcryptHasher(bcrypt.MinCost), f.issuer,
		notifier, nil, LifecycleConfig{ReviewerEmail: reviewerEmail, StoreTimeout: time.Second, NotifyTimeout: 50 * time.Millisecond})

	start := time.Now()
	rec, err := svc.Submit(context.Background(), SubmitInput{Email: "slow@example.com", Secret: "pw"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, <-notifier.hadDeadline)

	_, err = f.store.FindByID(context.Background(), models.StatePending, rec.ID)
	assert.NoError(t, err)
}

func TestSubmit_NotifierFailureKeepsRecord(t *testing.T) {
	f := newLifecycleFixture(t)
	f.notifier.err = models.NewDeliveryFailedError(errors.New("smtp down"))

	rec := f.submit(t, "bob@example.com")
	_, err := f.store.FindByID(context.Background(), models.StatePending, rec.ID)
	assert.NoError(t, err)
}

func TestSubmit_NoReviewerSkipsNotification(t *testing.T) {
	f := newLifecycleFixture(t)
	f.svc.cfg.ReviewerEmail = ""

	f.submit(t, "carol@example.com")
	assert.Empty(t, f.notifier.msgs)
}

func TestTransitions_StableIDAndPartitions(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	rec := f.submit(t, "dan@example.com")

	steps := []struct {
		op   func(context.Context, string) (*models.IdentityRecord, error)
		want models.LifecycleState
	}{
		{f.svc.Approve, models.StateActive},
		{f.svc.Revoke, models.StateRejected},
		{f.svc.Reinstate, models.StateActive},
		{f.reject, models.StateRejected},
	}
	for _, step := range steps {
		moved, err := step.op(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, moved.ID)
		assert.Equal(t, rec.SecretHash, moved.SecretHash)
		assert.Equal(t, step.want, moved.State)

		for _, state := range []models.LifecycleState{models.StatePending, models.StateActive, models.StateRejected} {
			_, err := f.store.FindByID(ctx, state, rec.ID)
			if state == step.want {
				assert.NoError(t, err)
			} else {
				assertCode(t, err, models.CodeNotFound)
			}
		}
	}

	assert.Equal(t, []string{"submit", "approve", "revoke", "reinstate", "reject"}, f.publisher.operations())

	froms := make([]string, 0, len(f.publisher.events))
	for _, evt := range f.publisher.events {
		froms = append(froms, evt.From)
	}
	assert.Equal(t, []string{"", "pending", "active", "rejected", "active"}, froms)
}

func TestReject_ReportsSourcePartition(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	pending := f.submit(t, "lee@example.com")
	_, prior, err := f.svc.Reject(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, prior)

	admin := f.submit(t, "mo@example.com")
	_, err = f.svc.Approve(ctx, admin.ID)
	require.NoError(t, err)
	moved, prior, err := f.svc.Reject(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, prior)
	assert.Equal(t, models.StateRejected, moved.State)

	_, prior, err = f.svc.Reject(ctx, admin.ID)
	assertCode(t, err, models.CodeNotFound)
	assert.Empty(t, prior)
}

func TestTransitions_WrongSourceState(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	rec := f.submit(t, "erin@example.com")

	_, err := f.svc.Revoke(ctx, rec.ID)
	assertCode(t, err, models.CodeNotFound)
	_, err = f.svc.Reinstate(ctx, rec.ID)
	assertCode(t, err, models.CodeNotFound)

	_, err = f.svc.Approve(ctx, rec.ID)
	require.NoError(t, err)
	_, err = f.svc.Deny(ctx, rec.ID)
	assertCode(t, err, models.CodeNotFound)
	_, err = f.svc.Approve(ctx, rec.ID)
	assertCode(t, err, models.CodeNotFound)

	_, err = f.svc.Approve(ctx, "")
	assertCode(t, err, models.CodeValidation)
	_, err = f.svc.Approve(ctx, "does-not-exist")
	assertCode(t, err, models.CodeNotFound)
}

func TestDeny_OnlyPending(t *testing.T) {
	f := newLifecycleFixture(t)
	rec := f.submit(t, "fay@example.com")

	moved, err := f.svc.Deny(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, moved.State)
}

func TestReinstate_ActiveEmailConflict(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	first := f.submit(t, "gus@example.com")
	_, err := f.svc.Deny(ctx, first.ID)
	require.NoError(t, err)

	second := f.submit(t, "gus@example.com")
	_, err = f.svc.Approve(ctx, second.ID)
	require.NoError(t, err)

	_, err = f.svc.Reinstate(ctx, first.ID)
	assertCode(t, err, models.CodeValidation)

	_, err = f.store.FindByID(ctx, models.StateRejected, first.ID)
	assert.NoError(t, err)
}

func TestApproveRejectRace_EndsRejected(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	rec := f.submit(t, "hal@example.com")

	var (
		wg                    sync.WaitGroup
		approveErr, rejectErr error
		rejectedFrom          models.LifecycleState
	)
	wg.Add(2)
	go func() { defer wg.Done(); _, approveErr = f.svc.Approve(ctx, rec.ID) }()
	go func() { defer wg.Done(); _, rejectedFrom, rejectErr = f.svc.Reject(ctx, rec.ID) }()
	wg.Wait()

	// Reject accepts pending and active, so it commits whichever order the two run in.
	require.NoError(t, rejectErr)
	if approveErr == nil {
		assert.Equal(t, models.StateActive, rejectedFrom, "approve committed first, reject took the active record")
	} else {
		assertCode(t, approveErr, models.CodeNotFound)
		assert.Equal(t, models.StatePending, rejectedFrom, "reject committed first, approve found nothing pending")
	}

	for _, state := range []models.LifecycleState{models.StatePending, models.StateActive} {
		_, err := f.store.FindByID(ctx, state, rec.ID)
		assertCode(t, err, models.CodeNotFound)
	}
	final, err := f.store.FindByID(ctx, models.StateRejected, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, final.State)
}

func TestApproveDenyRace_ExactlyOneWinner(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	rec := f.submit(t, "ivy@example.com")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.svc.Approve(ctx, rec.ID) }()
	go func() { defer wg.Done(); _, errs[1] = f.svc.Deny(ctx, rec.ID) }()
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assertCode(t, err, models.CodeNotFound)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestMove_StoreTimeout(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewLifecycleService(slowStore{f.store}, security.NewBcryptHasher(bcrypt.MinCost), f.issuer,
		nil, nil, LifecycleConfig{StoreTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.Approve(context.Background(), "any-id")
	assertCode(t, err, models.CodeStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestChangeSecret(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	rec := f.submit(t, "jo@example.com")

	assertCode(t, f.svc.ChangeSecret(ctx, rec.ID, "jo@example.com", "new secret"), models.CodeNotFound)

	_, err := f.svc.Approve(ctx, rec.ID)
	require.NoError(t, err)

	assertCode(t, f.svc.ChangeSecret(ctx, rec.ID, "jo@example.com", ""), models.CodeValidation)
	assertCode(t, f.svc.ChangeSecret(ctx, rec.ID, "", "x"), models.CodeValidation)
	require.NoError(t, f.svc.ChangeSecret(ctx, rec.ID, "JO@example.com", "new secret"))

	_, err = f.svc.Login(ctx, "jo@example.com", "correct horse")
	assertCode(t, err, models.CodeInvalidCredentials)
	res, err := f.svc.Login(ctx, "jo@example.com", "new secret")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, res.Record.ID)
}

func TestChangeSecret_OtherAdminForbidden(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	victim := f.submit(t, "victim@example.com")
	_, err := f.svc.Approve(ctx, victim.ID)
	require.NoError(t, err)
	attacker := f.submit(t, "attacker@example.com")
	_, err = f.svc.Approve(ctx, attacker.ID)
	require.NoError(t, err)

	err = f.svc.ChangeSecret(ctx, attacker.ID, "victim@example.com", "hijacked")
	assertCode(t, err, models.CodeForbidden)

	_, err = f.svc.Login(ctx, "victim@example.com", "hijacked")
	assertCode(t, err, models.CodeInvalidCredentials)
	_, err = f.svc.Login(ctx, "victim@example.com", "correct horse")
	assert.NoError(t, err)

	_, err = f.svc.Revoke(ctx, attacker.ID)
	require.NoError(t, err)
	assertCode(t, f.svc.ChangeSecret(ctx, attacker.ID, "attacker@example.com", "again"), models.CodeNotFound)
}

func TestLogin(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	rec := f.submit(t, "kim@example.com")

	_, err := f.svc.Login(ctx, "kim@example.com", "correct horse")
	assertCode(t, err, models.CodeInvalidCredentials)

	_, err = f.svc.Approve(ctx, rec.ID)
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "KIM@example.com", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	claims, err := f.issuer.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, claims.Subject)
	assert.Equal(t, "kim@example.com", claims.Email)

	_, wrongErr := f.svc.Login(ctx, "kim@example.com", "wrong")
	_, unknownErr := f.svc.Login(ctx, "nobody@example.com", "correct horse")
	assertCode(t, wrongErr, models.CodeInvalidCredentials)
	assertCode(t, unknownErr, models.CodeInvalidCredentials)
	assert.Equal(t, wrongErr.Error(), unknownErr.Error())
}
