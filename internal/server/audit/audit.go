// Package audit records security-relevant events: failed logins, rejected
// tokens, blocked uploads and unhandled faults.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"filedrop/internal/server/metrics"
)

// Kind names a security event type.
type Kind string

const (
	KindUnauthorizedAccess Kind = "UNAUTHORIZED_ACCESS"
	KindInvalidToken       Kind = "INVALID_TOKEN"
	KindFailedLogin        Kind = "FAILED_LOGIN"
	KindBlockedUpload      Kind = "BLOCKED_FILE_UPLOAD"
	KindUploadLimit        Kind = "UPLOAD_LIMIT"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindUnhandledError     Kind = "UNHANDLED_ERROR"
)

const redacted = "***"

var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"authorization": true,
}

// Client identifies who made the request an event belongs to.
type Client struct {
	IP        string
	UserAgent string
	Endpoint  string
	RequestID string
}

type clientKey struct{}

// WithClient attaches the requesting client to ctx.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the client stored by WithClient, or the zero value.
func ClientFromContext(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

// Recorder writes audit events to a structured logger. A nil Recorder
// discards events.
type Recorder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder tags every event from logger with component=audit.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// Record logs one event. Values under sensitive keys never reach the log.
func (r *Recorder) Record(ctx context.Context, kind Kind, details map[string]any) {
	if r == nil {
		return
	}

	metrics.SecurityEventsTotal.WithLabelValues(string(kind)).Inc()

	client := ClientFromContext(ctx)
	userAgent := client.UserAgent
	if userAgent == "" {
		userAgent = "Unknown"
	}

	r.logger.LogAttrs(ctx, slog.LevelWarn, "security event",
		slog.String("kind", string(kind)),
		slog.String("timestamp", r.now().UTC().Format(time.RFC3339Nano)),
		slog.String("ip", client.IP),
		slog.String("user_agent", userAgent),
		slog.String("endpoint", client.Endpoint),
		slog.String("request_id", client.RequestID),
		slog.Any("details", Redact(details)),
	)
}

// Redact returns a copy of details with sensitive values masked.
func Redact(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		if sensitiveKeys[strings.ToLower(k)] {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}
