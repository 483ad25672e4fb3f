package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"filedrop/internal/server/audit"
)

const (
	testSecret   = "test-signing-secret"
	testPassword = "correct horse battery staple"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestAuthService(t *testing.T) (*AuthService, *fakeClock, *bytes.Buffer) {
	t.Helper()
	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var logs bytes.Buffer
	recorder := audit.NewRecorder(slog.New(slog.NewJSONHandler(&logs, nil)))
	svc, err := NewAuthService(testSecret, hash, 24*time.Hour, recorder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	return svc, clock, &logs
}

func TestNewAuthService(t *testing.T) {
	hash, _ := HashPassword("pw", bcrypt.MinCost)

	if _, err := NewAuthService("", hash, time.Hour, nil); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewAuthService("s", "not-a-hash", time.Hour, nil); err == nil {
		t.Error("expected error for malformed hash")
	}
	if _, err := NewAuthService("s", hash, 0, nil); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password issues a verifiable token", func(t *testing.T) {
		svc, clock, _ := newTestAuthService(t)

		token, expiresAt, err := svc.Login(ctx, testPassword)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !expiresAt.Equal(clock.t.Add(24 * time.Hour)) {
			t.Errorf("expected expiry 24h after issue, got %s", expiresAt)
		}

		principal, err := svc.VerifyToken(token)
		if err != nil {
			t.Fatalf("expected token to verify: %v", err)
		}
		if !principal.Admin {
			t.Error("expected admin principal")
		}
	})

	t.Run("wrong password is rejected and audited without the password", func(t *testing.T) {
		svc, _, logs := newTestAuthService(t)

		_, _, err := svc.Login(ctx, "hunter2")
		if !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("expected ErrInvalidPassword, got %v", err)
		}
		if !strings.Contains(logs.String(), string(audit.KindFailedLogin)) {
			t.Errorf("expected failed login event, got %s", logs.String())
		}
		if strings.Contains(logs.String(), "hunter2") {
			t.Errorf("password leaked into audit log: %s", logs.String())
		}
	})

	t.Run("empty password", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)
		if _, _, err := svc.Login(ctx, ""); !errors.Is(err, ErrMissingPassword) {
			t.Errorf("expected ErrMissingPassword, got %v", err)
		}
	})

	t.Run("password longer than 72 bytes never matches", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)
		long := testPassword + strings.Repeat("x", 80)
		if _, _, err := svc.Login(ctx, long); !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("expected ErrInvalidPassword, got %v", err)
		}
	})
}

func TestAuthService_VerifyToken(t *testing.T) {
	ctx := context.Background()

	t.Run("expires at the 24h boundary", func(t *testing.T) {
		svc, clock, _ := newTestAuthService(t)
		issued := clock.t
		token, _, err := svc.Login(ctx, testPassword)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		clock.t = issued.Add(24*time.Hour - time.Second)
		if _, err := svc.VerifyToken(token); err != nil {
			t.Errorf("expected token valid just before expiry: %v", err)
		}

		clock.t = issued.Add(24 * time.Hour)
		if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential at expiry, got %v", err)
		}

		clock.t = issued.Add(24*time.Hour + time.Second)
		if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential after expiry, got %v", err)
		}
	})

	t.Run("empty token is a missing credential", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)
		if _, err := svc.VerifyToken(""); !errors.Is(err, ErrMissingCredential) {
			t.Errorf("expected ErrMissingCredential, got %v", err)
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)
		token, _, _ := svc.Login(ctx, testPassword)

		parts := strings.Split(token, ".")
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		tampered := parts[0] + "." + parts[1] + "." + string(sig)

		if _, err := svc.VerifyToken(tampered); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential, got %v", err)
		}
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		svc, clock, _ := newTestAuthService(t)
		claims := Claims{
			Admin: true,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(clock.t),
				ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
			},
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))

		if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential, got %v", err)
		}
	})

	t.Run("unsigned token is rejected", func(t *testing.T) {
		svc, clock, _ := newTestAuthService(t)
		claims := Claims{
			Admin: true,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
			},
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)

		if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential, got %v", err)
		}
	})

	t.Run("token without expiry is rejected", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Admin: true}).SignedString([]byte(testSecret))

		if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential, got %v", err)
		}
	})

	t.Run("token without admin claim is rejected", func(t *testing.T) {
		svc, clock, _ := newTestAuthService(t)
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
			},
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

		if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)
		if _, err := svc.VerifyToken("not.a.jwt"); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential, got %v", err)
		}
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := audit.WithClient(context.Background(), audit.Client{IP: "203.0.113.7", UserAgent: "curl/8"})

	t.Run("missing token is audited as unauthorized access", func(t *testing.T) {
		svc, _, logs := newTestAuthService(t)
		if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrMissingCredential) {
			t.Fatalf("expected ErrMissingCredential, got %v", err)
		}
		if !strings.Contains(logs.String(), string(audit.KindUnauthorizedAccess)) {
			t.Errorf("expected unauthorized access event, got %s", logs.String())
		}
		if !strings.Contains(logs.String(), "203.0.113.7") {
			t.Errorf("expected client ip in event, got %s", logs.String())
		}
	})

	t.Run("invalid token is audited", func(t *testing.T) {
		svc, _, logs := newTestAuthService(t)
		if _, err := svc.Authenticate(ctx, "bogus"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("expected ErrInvalidCredential, got %v", err)
		}
		if !strings.Contains(logs.String(), string(audit.KindInvalidToken)) {
			t.Errorf("expected invalid token event, got %s", logs.String())
		}
	})
}
