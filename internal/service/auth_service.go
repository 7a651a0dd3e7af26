package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/student-service/internal/auth"
	"github.com/spec-kit/student-service/internal/domain"
	"github.com/spec-kit/student-service/internal/events"
	"github.com/spec-kit/student-service/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("wrong student code or password")
	ErrMSSVTaken          = errors.New("mssv already registered")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrInactiveUser       = domain.ErrUserInactive
	ErrInvalidRole        = errors.New("unknown role")
)

// LoginLimiter throttles failed logins per student code.
type LoginLimiter interface {
	Blocked(ctx context.Context, mssv string) (bool, error)
	RecordFailure(ctx context.Context, mssv string) (bool, error)
	Reset(ctx context.Context, mssv string) error
}

type noopLimiter struct{}

func (noopLimiter) Blocked(context.Context, string) (bool, error)       { return false, nil }
func (noopLimiter) RecordFailure(context.Context, string) (bool, error) { return false, nil }
func (noopLimiter) Reset(context.Context, string) error                 { return nil }

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Hasher     *auth.PasswordHasher
	Tokens     *auth.TokenService
	Limiter    LoginLimiter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// RegisterInput describes a new account.
type RegisterInput struct {
	MSSV     string
	Email    string
	FullName string
	Role     domain.Role
	Password string
}

// AuthService coordinates registration, login and token refresh.
type AuthService struct {
	users      repository.UserRepository
	hasher     *auth.PasswordHasher
	tokens     *auth.TokenService
	limiter    LoginLimiter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	// dummyHash keeps unknown-user logins as slow as wrong-password ones.
	dummyHash string
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) (*AuthService, error) {
	if deps.UserRepo == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("auth service requires user repository, hasher and token service")
	}
	if deps.Limiter == nil {
		deps.Limiter = noopLimiter{}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = events.NewInMemoryDispatcher()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	return &AuthService{
		users:      deps.UserRepo,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		limiter:    deps.Limiter,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		dummyHash:  dummy,
	}, nil
}

// Register creates a new active account with a hashed password.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	mssv := strings.TrimSpace(in.MSSV)
	role := in.Role
	if role == "" {
		role = domain.RoleStudent
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if _, err := s.users.GetByMSSV(ctx, mssv); err == nil {
		return nil, ErrMSSVTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		MSSV:         mssv,
		Email:        strings.TrimSpace(in.Email),
		FullName:     strings.TrimSpace(in.FullName),
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrMSSVTaken
		}
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventUserRegistered, user.MSSV,
		events.UserRegisteredPayload{UserID: user.ID, Role: string(user.Role)}))
	return user, nil
}

// Login verifies credentials and issues an access and refresh token pair.
// The student code is trimmed the same way Register trims it.
func (s *AuthService) Login(ctx context.Context, mssv, password string) (*domain.User, domain.TokenPair, error) {
	mssv = strings.TrimSpace(mssv)
	blocked, err := s.limiter.Blocked(ctx, mssv)
	if err != nil {
		s.logger.Warn("login limiter check failed", zap.Error(err))
	}
	if blocked {
		s.publish(ctx, events.NewEvent(events.EventLoginFailed, mssv, events.LoginFailedPayload{Reason: "throttled"}))
		return nil, domain.TokenPair{}, ErrTooManyAttempts
	}

	user, err := s.users.GetByMSSV(ctx, mssv)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.TokenPair{}, err
	}

	if user == nil {
		s.hasher.Verify(password, s.dummyHash)
		return nil, domain.TokenPair{}, s.loginFailed(ctx, mssv, "unknown_user")
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, domain.TokenPair{}, s.loginFailed(ctx, mssv, "bad_password")
	}
	if !user.IsActive {
		s.publish(ctx, events.NewEvent(events.EventLoginFailed, mssv, events.LoginFailedPayload{Reason: "inactive"}))
		return nil, domain.TokenPair{}, ErrInactiveUser
	}

	if err := s.limiter.Reset(ctx, mssv); err != nil {
		s.logger.Warn("login limiter reset failed", zap.Error(err))
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	s.publish(ctx, events.NewEvent(events.EventLoginSucceeded, user.MSSV,
		events.LoginSucceededPayload{Role: string(user.Role)}))
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new access token. The subject must
// still exist and be active. Every failure yields auth.ErrRotationDenied.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil || claims.Type() != auth.TokenTypeRefresh {
		return "", auth.ErrRotationDenied
	}

	user, err := s.users.GetByMSSV(ctx, claims.Subject())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("refresh user lookup failed", zap.Error(err))
		}
		return "", auth.ErrRotationDenied
	}
	if !user.IsActive {
		return "", auth.ErrRotationDenied
	}

	access, err := s.tokens.RotateAccessToken(refreshToken)
	if err != nil {
		return "", auth.ErrRotationDenied
	}

	s.publish(ctx, events.NewEvent(events.EventTokenRefreshed, user.MSSV, nil))
	return access, nil
}

// Authenticate resolves the user behind an access token. Refresh tokens are
// rejected here even though they carry a valid signature.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, auth.Claims, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, nil, auth.ErrInvalidToken
	}
	if claims.Type() != auth.TokenTypeAccess || claims.Subject() == "" {
		return nil, nil, auth.ErrInvalidToken
	}

	user, err := s.users.GetByMSSV(ctx, claims.Subject())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, auth.ErrInvalidToken
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInactiveUser
	}
	return user, claims, nil
}

// GetUser returns the account registered under mssv.
func (s *AuthService) GetUser(ctx context.Context, mssv string) (*domain.User, error) {
	return s.users.GetByMSSV(ctx, mssv)
}

// Tokens exposes the token service for handlers that need lifetimes.
func (s *AuthService) Tokens() *auth.TokenService {
	return s.tokens
}

func (s *AuthService) issuePair(user *domain.User) (domain.TokenPair, error) {
	identity := auth.Claims{
		auth.ClaimSubject: user.MSSV,
		auth.ClaimRole:    string(user.Role),
	}

	access, err := s.tokens.IssueAccessToken(identity)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(identity)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, mssv, reason string) error {
	if _, err := s.limiter.RecordFailure(ctx, mssv); err != nil {
		s.logger.Warn("login limiter record failed", zap.Error(err))
	}
	s.publish(ctx, events.NewEvent(events.EventLoginFailed, mssv, events.LoginFailedPayload{Reason: reason}))
	return ErrInvalidCredentials
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
