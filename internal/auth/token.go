package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claim names set or read by the token service.
const (
	ClaimSubject   = "sub"
	ClaimRole      = "role"
	ClaimExpiry    = "exp"
	ClaimType      = "type"
	ClaimIsRevoked = "is_revoked"
)

const (
	DefaultAlgorithm  = "HS256"
	DefaultAccessTTL  = 10 * time.Minute
	DefaultRefreshTTL = 3 * 24 * time.Hour
)

var (
	// ErrInvalidToken is returned for every verification failure: bad structure,
	// bad signature, unexpected algorithm, expiry or undecodable claims.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrRotationDenied is returned when a refresh token cannot be exchanged.
	ErrRotationDenied = errors.New("refresh token rejected")
	// ErrEmptySecret is returned when the service is built without a signing key.
	ErrEmptySecret = errors.New("token secret must not be empty")
)

// Claims is the flat claim set encoded in a token payload.
type Claims map[string]any

// Subject returns the "sub" claim or an empty string.
func (c Claims) Subject() string {
	s, _ := c[ClaimSubject].(string)
	return s
}

// Role returns the "role" claim or an empty string.
func (c Claims) Role() string {
	s, _ := c[ClaimRole].(string)
	return s
}

// Type returns the "type" claim or an empty string.
func (c Claims) Type() string {
	s, _ := c[ClaimType].(string)
	return s
}

// ExpiresAt returns the "exp" claim as a time. ok is false when absent or not numeric.
func (c Claims) ExpiresAt() (time.Time, bool) {
	date, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

func (c Claims) clone() jwt.MapClaims {
	out := make(jwt.MapClaims, len(c)+2)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// TokenConfig holds the signing parameters of a TokenService.
type TokenConfig struct {
	Secret     string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RevocationCheck reports whether a verified refresh token must be refused.
type RevocationCheck func(Claims) bool

// TokenOption customises a TokenService at construction.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRevocationCheck installs a predicate consulted by RotateAccessToken.
func WithRevocationCheck(check RevocationCheck) TokenOption {
	return func(s *TokenService) {
		if check != nil {
			s.isRevoked = check
		}
	}
}

// TokenService issues and verifies HMAC signed access and refresh tokens.
// It holds only immutable configuration and is safe for concurrent use.
type TokenService struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	isRevoked  RevocationCheck
	parser     *jwt.Parser
}

// NewTokenService validates cfg and builds the service.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}

	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	s := &TokenService{
		secret:     []byte(cfg.Secret),
		method:     method,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
		isRevoked:  func(Claims) bool { return false },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// Algorithm returns the configured signing algorithm name.
func (s *TokenService) Algorithm() string {
	return s.method.Alg()
}

// AccessTTL returns the access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccessToken signs claims as an access token. Caller supplied "exp" and
// "type" values are overwritten.
func (s *TokenService) IssueAccessToken(claims Claims) (string, error) {
	return s.issue(claims, TokenTypeAccess, s.accessTTL)
}

// IssueRefreshToken signs claims as a refresh token. Caller supplied "exp" and
// "type" values are overwritten.
func (s *TokenService) IssueRefreshToken(claims Claims) (string, error) {
	return s.issue(claims, TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) issue(claims Claims, tokenType string, ttl time.Duration) (string, error) {
	payload := claims.clone()
	payload[ClaimExpiry] = s.now().UTC().Add(ttl).Unix()
	payload[ClaimType] = tokenType

	return jwt.NewWithClaims(s.method, payload).SignedString(s.secret)
}

// Verify checks signature, algorithm and expiry and returns the decoded claims.
// Every failure yields ErrInvalidToken. The "type" claim is not inspected:
// callers gating on a token kind must compare Claims.Type themselves.
func (s *TokenService) Verify(token string) (Claims, error) {
	parsed, err := s.parser.Parse(token, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return Claims(mapClaims), nil
}

// RotateAccessToken exchanges a valid refresh token for a fresh access token
// carrying the same identity claims. The refresh token stays valid until its
// own expiry.
func (s *TokenService) RotateAccessToken(refreshToken string) (string, error) {
	claims, err := s.Verify(refreshToken)
	if err != nil {
		return "", ErrRotationDenied
	}
	if claims.Type() != TokenTypeRefresh {
		return "", ErrRotationDenied
	}
	if revoked, _ := claims[ClaimIsRevoked].(bool); revoked {
		return "", ErrRotationDenied
	}
	if s.isRevoked(claims) {
		return "", ErrRotationDenied
	}

	next := make(Claims, len(claims))
	for k, v := range claims {
		if k == ClaimExpiry || k == ClaimType {
			continue
		}
		next[k] = v
	}

	token, err := s.IssueAccessToken(next)
	if err != nil {
		return "", ErrRotationDenied
	}
	return token, nil
}
