// Package service implements the admin identity lifecycle and catalog business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"appleverse/internal/middleware"
	"appleverse/internal/models"
	"appleverse/internal/notifications"
	"appleverse/internal/observability"
	"appleverse/internal/repository"
	"appleverse/internal/security"
	"appleverse/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

const signupSubject = "New Admin Signup Request"

// LifecycleConfig holds the settings the lifecycle engine reads.
type LifecycleConfig struct {
	// ReviewerEmail receives signup notifications. Empty disables them.
	ReviewerEmail string
	// StoreTimeout bounds every single store call. Zero means no extra bound.
	StoreTimeout time.Duration
	// NotifyTimeout bounds the reviewer notification sent after a signup.
	NotifyTimeout time.Duration
}

const defaultNotifyTimeout = 10 * time.Second

// LifecycleService moves identity records between pending, active and rejected.
type LifecycleService struct {
	store    repository.CredentialStore
	hasher   security.SecretHasher
	issuer   *security.TokenIssuer
	notifier notifications.Notifier
	events   notifications.EventPublisher
	cfg      LifecycleConfig
	now      func() time.Time
}

// SubmitInput is a signup request as received from the public form.
type SubmitInput struct {
	Name        string
	DateOfBirth string
	Email       string
	Secret      string
}

// AuthResult is returned by a successful login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Record    *models.IdentityRecord
}

type transition struct {
	operation string
	from      []models.LifecycleState
	to        models.LifecycleState
}

var (
	approveMove   = transition{"approve", []models.LifecycleState{models.StatePending}, models.StateActive}
	denyMove      = transition{"deny", []models.LifecycleState{models.StatePending}, models.StateRejected}
	rejectMove    = transition{"reject", []models.LifecycleState{models.StatePending, models.StateActive}, models.StateRejected}
	revokeMove    = transition{"revoke", []models.LifecycleState{models.StateActive}, models.StateRejected}
	reinstateMove = transition{"reinstate", []models.LifecycleState{models.StateRejected}, models.StateActive}
)

// NewLifecycleService wires the lifecycle engine. Nil notifier and events fall back to no-ops.
func NewLifecycleService(
	store repository.CredentialStore,
	hasher security.SecretHasher,
	issuer *security.TokenIssuer,
	notifier notifications.Notifier,
	events notifications.EventPublisher,
	cfg LifecycleConfig,
) *LifecycleService {
	if notifier == nil {
		notifier = notifications.NopNotifier{}
	}
	if events == nil {
		events = notifications.NopPublisher{}
	}
	return &LifecycleService{
		store:    store,
		hasher:   hasher,
		issuer:   issuer,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *LifecycleService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// Submit validates a signup request, stores it as pending and notifies the reviewer.
// Notification is best-effort: a delivery failure never undoes the stored request.
func (s *LifecycleService) Submit(ctx context.Context, in SubmitInput) (rec *models.IdentityRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "lifecycle.submit")
	defer func() {
		span.SetError(err)
		span.End()
		if err != nil {
			s.countRejection("submit", err)
		}
	}()

	email := models.NormalizeEmail(in.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateSecret(in.Secret); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateDateOfBirth(in.DateOfBirth); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	taken, err := s.countByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, models.NewValidationError("Email is already registered")
	}

	hash, err := s.hasher.Hash(in.Secret)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	rec = &models.IdentityRecord{
		Name:        strings.TrimSpace(in.Name),
		DateOfBirth: strings.TrimSpace(in.DateOfBirth),
		Email:       email,
		SecretHash:  hash,
	}
	sctx, cancel := s.storeCtx(ctx)
	_, err = s.store.Insert(sctx, models.StatePending, rec)
	cancel()
	if err != nil {
		return nil, err
	}
	span.AddAttributes(attribute.String("identity.id", rec.ID))

	observability.LifecycleTransitions.WithLabelValues("submit", "", string(models.StatePending)).Inc()
	middleware.Logger.InfoContext(ctx, "signup request stored",
		slog.String("record_id", rec.ID), slog.String("email", rec.Email))

	s.notifyReviewer(ctx, rec)
	s.publish(ctx, "submit", rec, "", models.StatePending)
	return rec, nil
}

func (s *LifecycleService) countByEmail(ctx context.Context, email string) (int64, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.CountByEmail(sctx, models.LiveStates, email)
}

func (s *LifecycleService) notifyReviewer(ctx context.Context, rec *models.IdentityRecord) {
	if s.cfg.ReviewerEmail == "" {
		middleware.Logger.WarnContext(ctx, "EMAIL_ADMIN not set, skipping signup notification",
			slog.String("record_id", rec.ID))
		return
	}

	msg := notifications.Message{
		To:      s.cfg.ReviewerEmail,
		Subject: signupSubject,
		Body: fmt.Sprintf("Name: %s\nDate of Birth: %s\nEmail: %s\n\nPlease review and approve in your admin dashboard.",
			rec.Name, rec.DateOfBirth, rec.Email),
	}
	timeout := s.cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	// The record is already stored, so a client hanging up must not cut delivery short.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.notifier.Notify(nctx, msg); err != nil {
		observability.NotificationFailures.WithLabelValues("signup").Inc()
		middleware.Logger.WarnContext(ctx, "signup notification failed",
			slog.String("record_id", rec.ID), slog.String("error", err.Error()))
	}
}

// Approve moves a pending request to active.
func (s *LifecycleService) Approve(ctx context.Context, id string) (*models.IdentityRecord, error) {
	rec, _, err := s.move(ctx, approveMove, id)
	return rec, err
}

// Deny moves a pending request to rejected.
func (s *LifecycleService) Deny(ctx context.Context, id string) (*models.IdentityRecord, error) {
	rec, _, err := s.move(ctx, denyMove, id)
	return rec, err
}

// Reject moves a pending request or an active admin to rejected.
// The returned state is the partition the record was taken from.
func (s *LifecycleService) Reject(ctx context.Context, id string) (*models.IdentityRecord, models.LifecycleState, error) {
	return s.move(ctx, rejectMove, id)
}

// Revoke moves an active admin to rejected.
func (s *LifecycleService) Revoke(ctx context.Context, id string) (*models.IdentityRecord, error) {
	rec, _, err := s.move(ctx, revokeMove, id)
	return rec, err
}

// Reinstate moves a rejected record back to active.
func (s *LifecycleService) Reinstate(ctx context.Context, id string) (*models.IdentityRecord, error) {
	rec, _, err := s.move(ctx, reinstateMove, id)
	return rec, err
}

func (s *LifecycleService) move(ctx context.Context, t transition, id string) (rec *models.IdentityRecord, prior models.LifecycleState, err error) {
	span, ctx := observability.NewSpan(ctx, "lifecycle."+t.operation)
	span.AddAttributes(attribute.String("identity.id", id), attribute.String("lifecycle.to", string(t.to)))
	defer func() {
		span.SetError(err)
		span.End()
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		err = models.NewValidationError("requestId is required")
		s.countRejection(t.operation, err)
		return nil, "", err
	}

	sctx, cancel := s.storeCtx(ctx)
	rec, prior, err = s.store.Move(sctx, id, t.from, t.to)
	cancel()
	if err != nil {
		s.countRejection(t.operation, err)
		middleware.Logger.InfoContext(ctx, "lifecycle move refused",
			slog.String("operation", t.operation), slog.String("record_id", id), slog.String("error", err.Error()))
		return nil, "", err
	}

	observability.LifecycleTransitions.WithLabelValues(t.operation, string(prior), string(t.to)).Inc()
	middleware.Logger.InfoContext(ctx, "lifecycle move committed",
		slog.String("operation", t.operation),
		slog.String("record_id", rec.ID),
		slog.String("from", string(prior)),
		slog.String("to", string(t.to)))

	s.publish(ctx, t.operation, rec, string(prior), t.to)
	return rec, prior, nil
}

// ChangeSecret re-hashes the secret of the active admin adminID, NotFound when that
// admin is not active. The email must be the admin's own; any other email is forbidden.
func (s *LifecycleService) ChangeSecret(ctx context.Context, adminID, email, newSecret string) (err error) {
	span, ctx := observability.NewSpan(ctx, "lifecycle.change_secret")
	defer func() {
		span.SetError(err)
		span.End()
		if err != nil {
			s.countRejection("change_secret", err)
		}
	}()

	email = models.NormalizeEmail(email)
	if email == "" {
		return models.NewValidationError("email is required")
	}
	if err := validation.ValidateSecret(newSecret); err != nil {
		return models.NewValidationError(err.Error())
	}

	sctx, cancel := s.storeCtx(ctx)
	self, err := s.store.FindByID(sctx, models.StateActive, strings.TrimSpace(adminID))
	cancel()
	if err != nil {
		return err
	}
	if self.Email != email {
		middleware.Logger.WarnContext(ctx, "admin secret change refused for another account",
			slog.String("record_id", self.ID), slog.String("target_email", email))
		return models.NewForbiddenError("Admins may only change their own password")
	}

	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return models.NewInternalError(err)
	}

	sctx, cancel = s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdateSecretHash(sctx, models.StateActive, email, hash); err != nil {
		return err
	}

	middleware.Logger.InfoContext(ctx, "admin secret changed",
		slog.String("record_id", self.ID), slog.String("email", email))
	return nil
}

// Login verifies an active admin's credentials and issues a session token.
// Unknown emails and wrong secrets fail identically.
func (s *LifecycleService) Login(ctx context.Context, email, secret string) (res *AuthResult, err error) {
	span, ctx := observability.NewSpan(ctx, "lifecycle.login")
	defer func() {
		span.SetError(err)
		span.End()
	}()

	email = models.NormalizeEmail(email)
	sctx, cancel := s.storeCtx(ctx)
	rec, err := s.store.FindByEmail(sctx, models.StateActive, email)
	cancel()
	if err != nil && !models.HasCode(err, models.CodeNotFound) {
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	hash := ""
	if rec != nil {
		hash = rec.SecretHash
	}
	if !s.hasher.Verify(secret, hash) || rec == nil {
		observability.LoginAttempts.WithLabelValues("invalid").Inc()
		middleware.Logger.InfoContext(ctx, "admin login refused", slog.String("email", email))
		return nil, models.NewInvalidCredentialsError()
	}

	session, err := s.issuer.Issue(rec.ID, rec.Email)
	if err != nil {
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return nil, models.NewInternalError(err)
	}

	observability.LoginAttempts.WithLabelValues("success").Inc()
	middleware.Logger.InfoContext(ctx, "admin logged in", slog.String("record_id", rec.ID))
	return &AuthResult{Token: session.Token, ExpiresAt: session.ExpiresAt, Record: rec}, nil
}

func (s *LifecycleService) publish(ctx context.Context, op string, rec *models.IdentityRecord, from string, to models.LifecycleState) {
	evt := notifications.LifecycleEvent{
		Operation: op,
		RecordID:  rec.ID,
		Email:     rec.Email,
		From:      from,
		To:        string(to),
		ActorID:   actorID(ctx),
		At:        s.now().UTC(),
	}
	if err := s.events.PublishEvent(ctx, evt); err != nil {
		observability.NotificationFailures.WithLabelValues("lifecycle_feed").Inc()
		middleware.Logger.WarnContext(ctx, "lifecycle event publish failed",
			slog.String("operation", op), slog.String("error", err.Error()))
	}
}

func (s *LifecycleService) countRejection(op string, err error) {
	observability.LifecycleRejections.WithLabelValues(op, errorCode(err)).Inc()
}

func actorID(ctx context.Context) string {
	if v, ok := ctx.Value(middleware.AdminIDKey).(string); ok {
		return v
	}
	return ""
}

func errorCode(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return models.CodeInternal
}
