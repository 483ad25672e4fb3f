package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"

	"filedrop/internal/server/audit"
	"filedrop/internal/server/service"
)

const (
	principalKey      = "principal"
	maxTrackedClients = 10000
)

// hitWindow holds the request times of one client inside the current window,
// oldest first.
type hitWindow struct {
	hits []time.Time
}

// RateLimiter is a per-IP sliding-window rate limiter. Client state lives in
// a size-bounded LRU whose entries expire one window after the last request.
type RateLimiter struct {
	name    string
	limit   int
	window  time.Duration
	message string
	audit   *audit.Recorder

	mu      sync.Mutex
	clients *expirable.LRU[string, *hitWindow]
	now     func() time.Time
}

// NewRateLimiter allows limit requests per client within window. A limit of
// zero or less disables it.
func NewRateLimiter(name string, limit int, window time.Duration, message string, recorder *audit.Recorder) *RateLimiter {
	return &RateLimiter{
		name:    name,
		limit:   limit,
		window:  window,
		message: message,
		audit:   recorder,
		clients: expirable.NewLRU[string, *hitWindow](maxTrackedClients, nil, window),
		now:     time.Now,
	}
}

// Middleware returns an echo middleware function that enforces rate limits.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl.limit <= 0 {
				return next(c)
			}

			ip := c.RealIP()
			allowed, remaining, retryAfter := rl.allow(ip)

			header := c.Response().Header()
			header.Set("RateLimit-Limit", strconv.Itoa(rl.limit))
			header.Set("RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				header.Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.5)))
				rl.audit.Record(c.Request().Context(), audit.KindRateLimited, map[string]any{
					"limiter": rl.name,
					"limit":   rl.limit,
				})
				return fail(c, http.StatusTooManyRequests, rl.message)
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(key string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients.Get(key)
	if !ok {
		w = &hitWindow{}
	}

	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	w.hits = w.hits[i:]

	if len(w.hits) >= rl.limit {
		rl.clients.Add(key, w)
		return false, 0, w.hits[0].Add(rl.window).Sub(now)
	}

	w.hits = append(w.hits, now)
	// Re-adding refreshes the entry's expiry.
	rl.clients.Add(key, w)
	return true, rl.limit - len(w.hits), 0
}

// AuditContext attaches the client identity used by audit events to the
// request context.
func AuditContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			client := audit.Client{
				IP:        c.RealIP(),
				UserAgent: req.UserAgent(),
				Endpoint:  req.URL.Path,
				RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
			}
			c.SetRequest(req.WithContext(audit.WithClient(req.Context(), client)))
			return next(c)
		}
	}
}

// RequireAdmin rejects requests without a valid bearer token. When required
// is false the route stays open.
func (h *Handler) RequireAdmin(required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !required {
			return next
		}
		return func(c echo.Context) error {
			token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			principal, err := h.auth.Authenticate(c.Request().Context(), token)
			if err != nil {
				return h.mapServiceError(c, err)
			}
			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal set by RequireAdmin, or nil.
func PrincipalFrom(c echo.Context) *service.Principal {
	p, _ := c.Get(principalKey).(*service.Principal)
	return p
}

// bearerToken extracts the token from "Bearer <token>". Any other scheme
// yields an empty string.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequestLogger returns an echo middleware that logs requests using slog.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Render now so the logged status is the one sent.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			slog.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"user_agent", req.UserAgent(),
				"bytes_out", res.Size,
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"admin", PrincipalFrom(c) != nil,
			)

			return err
		}
	}
}
