// Package audit emits append-only change records for role and grant
// mutations. Persistence is owned by an external subsystem; this package
// writes structured events to the shared log stream, which that subsystem
// tails.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"gatewise.org/internal/authn"
	"gatewise.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := authn.UserIDFromContext(ctx); ok {
		entry["actor_id"] = userID
	}
	if len(fields) > 0 {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		entry["fields"] = copied
	} else {
		entry["fields"] = map[string]any{}
	}
	obs.LogEntry(entry)
	return nil
}

// Recorder implements the authorization core's change-notification sink.
type Recorder struct{}

// NewRecorder returns a log-backed change recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// RecordChange emits one change event. The actor is taken from the request
// context.
func (Recorder) RecordChange(ctx context.Context, action, targetType, targetID string, metadata map[string]string) error {
	fields := map[string]any{
		"target_type": targetType,
		"target_id":   targetID,
	}
	for k, v := range metadata {
		fields[k] = v
	}
	return LogEvent(ctx, "authz."+action, fields)
}
