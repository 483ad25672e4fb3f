package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"filedrop/internal/server/audit"
	"filedrop/internal/server/metrics"
)

const (
	tokenSubject = "admin"
	// bcrypt only looks at the first 72 bytes; longer input never matches.
	maxPasswordBytes = 72
)

// Principal is the identity attached to a request after its token verifies.
// There is a single admin principal.
type Principal struct {
	Admin bool
}

// Claims are the JWT claims issued on login.
type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies admin tokens.
type AuthService struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	audit        *audit.Recorder
	now          func() time.Time
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// NewAuthService creates the access gate. passwordHash is a bcrypt hash of
// the admin password.
func NewAuthService(secret, passwordHash string, ttl time.Duration, recorder *audit.Recorder) (*AuthService, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is empty")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("invalid admin password hash: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	return &AuthService{
		secret:       []byte(secret),
		passwordHash: []byte(passwordHash),
		ttl:          ttl,
		audit:        recorder,
		now:          time.Now,
	}, nil
}

// Login exchanges the admin password for a signed token.
func (s *AuthService) Login(ctx context.Context, password string) (string, time.Time, error) {
	if password == "" {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return "", time.Time{}, ErrMissingPassword
	}

	if !s.checkPassword(password) {
		metrics.LoginsTotal.WithLabelValues("failed").Inc()
		s.audit.Record(ctx, audit.KindFailedLogin, map[string]any{
			"password": password,
		})
		return "", time.Time{}, ErrInvalidPassword
	}

	token, expiresAt, err := s.issue()
	if err != nil {
		return "", time.Time{}, err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return token, expiresAt, nil
}

// VerifyToken checks signature, algorithm and expiry. An empty token is a
// missing credential; anything else that fails is an invalid one.
func (s *AuthService) VerifyToken(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingCredential
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !claims.Admin {
		return nil, fmt.Errorf("%w: admin claim missing", ErrInvalidCredential)
	}

	return &Principal{Admin: true}, nil
}

// Authenticate is VerifyToken plus an audit event on failure.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*Principal, error) {
	principal, err := s.VerifyToken(tokenString)
	if err == nil {
		return principal, nil
	}

	if errors.Is(err, ErrMissingCredential) {
		s.audit.Record(ctx, audit.KindUnauthorizedAccess, map[string]any{
			"reason": "no token provided",
		})
	} else {
		s.audit.Record(ctx, audit.KindInvalidToken, map[string]any{
			"reason": err.Error(),
		})
	}
	return nil, err
}

func (s *AuthService) checkPassword(password string) bool {
	if len(password) > maxPasswordBytes {
		// Compare anyway to keep timing flat.
		bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password[:maxPasswordBytes]))
		return false
	}
	return bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) == nil
}

func (s *AuthService) issue() (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tokenSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt.Truncate(time.Second), nil
}
