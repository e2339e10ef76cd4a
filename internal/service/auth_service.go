package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go-admin-auth/internal/metrics"
	"go-admin-auth/internal/model"
	"go-admin-auth/internal/ratelimit"
	"go-admin-auth/internal/rbac"
	"go-admin-auth/internal/token"
	"go-admin-auth/pkg/apierror"
)

// CredentialStore is the read side of the identity store used at login and
// refresh.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	VerifyPassword(user model.User, password string) bool
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// AuthObserver receives login and refresh outcomes.
type AuthObserver interface {
	ObserveLogin(outcome string)
	ObserveRefresh(outcome string)
	ObserveLimiterError(scope string)
}

type AuthServiceDeps struct {
	Store          CredentialStore
	Issuer         *token.Issuer
	Verifier       *token.Verifier
	LoginLimiter   ratelimit.Limiter
	RefreshLimiter ratelimit.Limiter
	// LoginRoles lists the roles allowed to sign in; empty admits every role.
	LoginRoles []string
	Observer   AuthObserver
	Audit      *AuditService
	Now        func() time.Time
}

type AuthService struct {
	store          CredentialStore
	issuer         *token.Issuer
	verifier       *token.Verifier
	loginLimiter   ratelimit.Limiter
	refreshLimiter ratelimit.Limiter
	loginRoles     rbac.RoleSet
	observer       AuthObserver
	audit          *AuditService
	now            func() time.Time
}

func NewAuthService(deps AuthServiceDeps) (*AuthService, error) {
	if deps.Store == nil || deps.Issuer == nil || deps.Verifier == nil {
		return nil, errors.New("auth service requires a credential store, issuer and verifier")
	}
	if deps.LoginLimiter == nil || deps.RefreshLimiter == nil {
		return nil, errors.New("auth service requires login and refresh limiters")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &AuthService{
		store:          deps.Store,
		issuer:         deps.Issuer,
		verifier:       deps.Verifier,
		loginLimiter:   deps.LoginLimiter,
		refreshLimiter: deps.RefreshLimiter,
		loginRoles:     rbac.ParseRoleSet(deps.LoginRoles),
		observer:       deps.Observer,
		audit:          deps.Audit,
		now:            now,
	}, nil
}

// Login exchanges credentials for a token pair. The limiter is consulted
// before the credential store; an unknown email and a wrong password produce
// the same error.
func (s *AuthService) Login(ctx context.Context, email string, password string, clientKey string) (model.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.LoginResult{}, apierror.Validation("email and password are required", "email,password")
	}

	actor := model.AuditActor{Email: email, IP: clientKey}

	if err := s.checkLimit(ctx, s.loginLimiter, "login", clientKey); err != nil {
		s.observeLogin(metrics.OutcomeRateLimited)
		s.audit.Record(ctx, model.AuditEntry{Action: model.AuditLogin, Actor: actor, Status: model.AuditRateLimited})
		return model.LoginResult{}, err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		// Spend the same bcrypt time as a real comparison.
		CheckDummyPassword(password)
		return model.LoginResult{}, s.loginFailed(ctx, actor, metrics.OutcomeInvalid, "unknown email", apierror.InvalidCredentials())
	}
	if err != nil {
		s.observeLogin(metrics.OutcomeError)
		return model.LoginResult{}, fmt.Errorf("look up credentials: %w", err)
	}

	actor.UserID = user.ID

	if !user.Active {
		return model.LoginResult{}, s.loginFailed(ctx, actor, metrics.OutcomeForbidden, "account inactive", apierror.Forbidden("account is inactive"))
	}

	if !s.store.VerifyPassword(user, password) {
		return model.LoginResult{}, s.loginFailed(ctx, actor, metrics.OutcomeInvalid, "wrong password", apierror.InvalidCredentials())
	}

	if !s.mayAuthenticate(user) {
		return model.LoginResult{}, s.loginFailed(ctx, actor, metrics.OutcomeForbidden, "role not permitted", apierror.Forbidden("account is not permitted to sign in"))
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		s.observeLogin(metrics.OutcomeError)
		return model.LoginResult{}, fmt.Errorf("issue token pair: %w", err)
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		slog.Warn("record last login failed", "user_id", user.ID, "error", err.Error())
	}

	s.observeLogin(metrics.OutcomeSuccess)
	s.audit.Record(ctx, model.AuditEntry{Action: model.AuditLogin, Actor: actor, Status: model.AuditSuccess})

	return model.LoginResult{TokenPair: pair, User: user.Public()}, nil
}

// Refresh exchanges a refresh token for a new pair. The identity is re-read
// so deactivated or demoted accounts stop renewing. Every token or identity
// problem is reported as the same unauthorized error.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, clientKey string) (model.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return model.TokenPair{}, apierror.Validation("refreshToken is required", "refreshToken")
	}

	actor := model.AuditActor{IP: clientKey}

	if err := s.checkLimit(ctx, s.refreshLimiter, "refresh", clientKey); err != nil {
		s.observeRefresh(metrics.OutcomeRateLimited)
		s.audit.Record(ctx, model.AuditEntry{Action: model.AuditRefresh, Actor: actor, Status: model.AuditRateLimited})
		return model.TokenPair{}, err
	}

	claims, err := s.verifier.VerifyRefresh(refreshToken)
	if err != nil {
		return model.TokenPair{}, s.refreshFailed(ctx, actor, err.Error())
	}
	actor.UserID = claims.Subject
	actor.Email = claims.Email

	user, err := s.store.FindByID(ctx, claims.Subject)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, s.refreshFailed(ctx, actor, "identity no longer exists")
	}
	if err != nil {
		s.observeRefresh(metrics.OutcomeError)
		return model.TokenPair{}, fmt.Errorf("look up identity: %w", err)
	}

	if !user.Active || !s.mayAuthenticate(user) {
		return model.TokenPair{}, s.refreshFailed(ctx, actor, "identity may no longer authenticate")
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		s.observeRefresh(metrics.OutcomeError)
		return model.TokenPair{}, fmt.Errorf("issue token pair: %w", err)
	}

	s.observeRefresh(metrics.OutcomeSuccess)
	s.audit.Record(ctx, model.AuditEntry{Action: model.AuditRefresh, Actor: actor, Status: model.AuditSuccess})

	return pair, nil
}

// Me returns the current identity of an authenticated caller.
func (s *AuthService) Me(ctx context.Context, userID string) (model.AuthUser, error) {
	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.AuthUser{}, apierror.Unauthorized()
	}
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("look up identity: %w", err)
	}
	if !user.Active {
		return model.AuthUser{}, apierror.Unauthorized()
	}
	return user.Public(), nil
}

// Can answers whether roles may perform rawAction on resource. It backs the
// capability endpoint; enforcement happens in the guard.
func (s *AuthService) Can(roles rbac.RoleSet, rawAction string, resource string) (model.PermissionCheck, error) {
	action, err := rbac.ParseAction(rawAction)
	if err != nil {
		return model.PermissionCheck{}, apierror.Validation("action must be one of create, read, update, delete", "action")
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return model.PermissionCheck{}, apierror.Validation("resource is required", "resource")
	}

	return model.PermissionCheck{
		Action:   string(action),
		Resource: resource,
		Allowed:  rbac.IsAuthorized(roles, action, resource),
	}, nil
}

func (s *AuthService) mayAuthenticate(user model.User) bool {
	roles := user.RoleSet()
	if roles.Empty() {
		return false
	}
	if s.loginRoles.Empty() {
		return true
	}
	return roles.HasAny(s.loginRoles.Roles()...)
}

// checkLimit returns a rate_limited error when the attempt is blocked. A
// failing limiter backend lets the attempt through.
func (s *AuthService) checkLimit(ctx context.Context, limiter ratelimit.Limiter, scope string, clientKey string) error {
	decision, err := limiter.CheckAndRecordAttempt(ctx, clientKey)
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing attempt", "scope", scope, "error", err.Error())
		if s.observer != nil {
			s.observer.ObserveLimiterError(scope)
		}
		return nil
	}
	if decision.Allowed {
		return nil
	}

	slog.Info("auth attempt throttled", "scope", scope, "client", clientKey, "reset_at", decision.ResetAt)
	return apierror.RateLimited(decision.RetryAfter(s.now()))
}

func (s *AuthService) loginFailed(ctx context.Context, actor model.AuditActor, outcome string, reason string, err error) error {
	slog.Info("login rejected", "email", actor.Email, "client", actor.IP, "reason", reason)
	s.observeLogin(outcome)
	s.audit.Record(ctx, model.AuditEntry{Action: model.AuditLogin, Actor: actor, Status: model.AuditFailure, Error: reason})
	return err
}

func (s *AuthService) refreshFailed(ctx context.Context, actor model.AuditActor, reason string) error {
	slog.Debug("refresh rejected", "client", actor.IP, "reason", reason)
	s.observeRefresh(metrics.OutcomeUnauthorized)
	s.audit.Record(ctx, model.AuditEntry{Action: model.AuditRefresh, Actor: actor, Status: model.AuditFailure, Error: reason})
	return apierror.Unauthorized()
}

func (s *AuthService) observeLogin(outcome string) {
	if s.observer != nil {
		s.observer.ObserveLogin(outcome)
	}
}

func (s *AuthService) observeRefresh(outcome string) {
	if s.observer != nil {
		s.observer.ObserveRefresh(outcome)
	}
}
