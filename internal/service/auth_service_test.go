package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/student-service/internal/auth"
	"github.com/spec-kit/student-service/internal/domain"
	"github.com/spec-kit/student-service/internal/events"
	"github.com/spec-kit/student-service/internal/ratelimit"
	"github.com/spec-kit/student-service/internal/repository"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	byMSSV map[string]*domain.User
	err    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byMSSV: map[string]*domain.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byMSSV[user.MSSV]; ok {
		return repository.ErrDuplicate
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.byMSSV[user.MSSV] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byMSSV {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByMSSV(_ context.Context, mssv string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.byMSSV[mssv]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) Ping(context.Context) error { return nil }

func (r *fakeUserRepo) setActive(mssv string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMSSV[mssv].IsActive = active
}

type fixture struct {
	svc    *AuthService
	repo   *fakeUserRepo
	tokens *auth.TokenService
	redis  *miniredis.Miniredis
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     "service-test-secret",
		AccessTTL:  10 * time.Minute,
		RefreshTTL: 72 * time.Hour,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, logger).RegisterHandlers()

	repo := newFakeUserRepo()
	svc, err := NewAuthService(AuthDependencies{
		UserRepo: repo,
		Hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
		Tokens:   tokens,
		Limiter: ratelimit.NewLoginLimiter(client, ratelimit.LoginLimiterConfig{
			Enabled: true, MaxAttempts: 3, Window: time.Minute,
		}),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, tokens: tokens, redis: mr, logs: logs}
}

func (f *fixture) register(t *testing.T, mssv string, role domain.Role) *domain.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), RegisterInput{
		MSSV: mssv, Email: mssv + "@student.edu.vn", FullName: "Test User", Role: role, Password: "sherlock",
	})
	require.NoError(t, err)
	return user
}

func TestNewAuthServiceRequiresCollaborators(t *testing.T) {
	_, err := NewAuthService(AuthDependencies{})
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, RegisterInput{MSSV: " 20520001 ", Email: "a@b.c", Password: "sherlock"})
	require.NoError(t, err)
	assert.Equal(t, "20520001", user.MSSV)
	assert.Equal(t, domain.RoleStudent, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "sherlock", user.PasswordHash)

	_, err = f.svc.Register(ctx, RegisterInput{MSSV: "20520001", Email: "x@y.z", Password: "another"})
	assert.ErrorIs(t, err, ErrMSSVTaken)

	_, err = f.svc.Register(ctx, RegisterInput{MSSV: "20520002", Role: "DEAN", Password: "sherlock"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.Equal(t, 1, f.logs.FilterMessage(string(events.EventUserRegistered)).Len())
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := newFixture(t)
	f.register(t, "20520001", domain.RoleAdvisor)

	user, pair, err := f.svc.Login(context.Background(), "20520001", "sherlock")
	require.NoError(t, err)
	assert.Equal(t, "20520001", user.MSSV)

	access, err := f.tokens.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "20520001", access.Subject())
	assert.Equal(t, "CVHT", access.Role())
	assert.Equal(t, auth.TokenTypeAccess, access.Type())

	refresh, err := f.tokens.Verify(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeRefresh, refresh.Type())

	entries := f.logs.FilterMessage(string(events.EventLoginSucceeded)).All()
	require.Len(t, entries, 1)
	for _, field := range entries[0].Context {
		assert.NotContains(t, field.String, pair.AccessToken)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "20520001", domain.RoleStudent)
	ctx := context.Background()

	_, _, errUnknown := f.svc.Login(ctx, "99999999", "sherlock")
	_, _, errWrong := f.svc.Login(ctx, "20520001", "watson")

	assert.Equal(t, ErrInvalidCredentials, errUnknown)
	assert.Equal(t, ErrInvalidCredentials, errWrong)
	assert.Equal(t, 2, f.logs.FilterMessage(string(events.EventLoginFailed)).Len())
}

func TestLoginThrottling(t *testing.T) {
	f := newFixture(t)
	f.register(t, "20520001", domain.RoleStudent)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.Login(ctx, "20520001", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, _, err := f.svc.Login(ctx, "20520001", "sherlock")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	f.redis.FastForward(2 * time.Minute)
	_, _, err = f.svc.Login(ctx, "20520001", "sherlock")
	assert.NoError(t, err)
}

func TestLoginSucceedsWhenLimiterDown(t *testing.T) {
	f := newFixture(t)
	f.register(t, "20520001", domain.RoleStudent)
	f.redis.Close()

	_, _, err := f.svc.Login(context.Background(), "20520001", "sherlock")
	assert.NoError(t, err)
}

func TestLoginInactiveUser(t *testing.T) {
	f := newFixture(t)
	f.register(t, "20520001", domain.RoleStudent)
	f.repo.setActive("20520001", false)

	_, _, err := f.svc.Login(context.Background(), "20520001", "sherlock")
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestLoginRepositoryError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("db down")
	f.repo.err = boom

	_, _, err := f.svc.Login(context.Background(), "20520001", "sherlock")
	assert.ErrorIs(t, err, boom)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	f.register(t, "20520001", domain.RoleStudent)
	ctx := context.Background()

	_, pair, err := f.svc.Login(ctx, "20520001", "sherlock")
	require.NoError(t, err)

	access, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := f.tokens.Verify(access)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, claims.Type())
	assert.Equal(t, "20520001", claims.Subject())

	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	assert.Equal(t, auth.ErrRotationDenied, err)

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.Equal(t, auth.ErrRotationDenied, err)

	f.repo.setActive("20520001", false)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.Equal(t, auth.ErrRotationDenied, err)
}

func TestRefreshUnknownSubject(t *testing.T) {
	f := newFixture(t)

	orphan, err := f.tokens.IssueRefreshToken(auth.Claims{"sub": "ghost", "role": "STUDENT"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), orphan)
	assert.Equal(t, auth.ErrRotationDenied, err)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "20520001", domain.RoleAdmin)
	ctx := context.Background()

	_, pair, err := f.svc.Login(ctx, "20520001", "sherlock")
	require.NoError(t, err)

	user, claims, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.Equal(t, "ADMIN", claims.Role())

	_, _, err = f.svc.Authenticate(ctx, pair.RefreshToken)
	assert.Equal(t, auth.ErrInvalidToken, err, "refresh tokens must not authenticate requests")

	ghost, err := f.tokens.IssueAccessToken(auth.Claims{"sub": "ghost"})
	require.NoError(t, err)
	_, _, err = f.svc.Authenticate(ctx, ghost)
	assert.Equal(t, auth.ErrInvalidToken, err)

	f.repo.setActive("20520001", false)
	_, _, err = f.svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestLoginTrimsStudentCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{MSSV: " 20520001 ", Email: "a@b.c", Password: "sherlock"})
	require.NoError(t, err)

	user, _, err := f.svc.Login(ctx, " 20520001 ", "sherlock")
	require.NoError(t, err)
	assert.Equal(t, "20520001", user.MSSV)

	for i := 0; i < 3; i++ {
		_, _, _ = f.svc.Login(ctx, "20520001\t", "wrong")
	}
	_, _, err = f.svc.Login(ctx, "20520001", "sherlock")
	assert.ErrorIs(t, err, ErrTooManyAttempts, "padded and bare codes share one limiter counter")
}
