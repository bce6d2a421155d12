package audit

import (
	"context"
	"log/slog"

	id "rxcred/pkg/domain"
	"rxcred/pkg/platform/middleware"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// MultiEmitter fans an event out to several sinks. The first error is
// returned after all sinks have been attempted.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, event Event) error {
	var first error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Logger provides structured audit logging with optional event emission.
// Use this in services to standardize audit logging patterns.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger.
// textLogger is used for structured logging; emitter is optional for event persistence.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Log logs an audit event to text and optionally emits to the audit store.
// Automatically enriches with request_id from context.
//
// Usage:
//
//	logger.Log(ctx, "credential_signed", "prescription_id", rxID.String(), "actor", issuerDID)
func (l *Logger) Log(ctx context.Context, event string, attributes ...any) {
	requestID := middleware.GetRequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}

	l.logToText(ctx, event, attributes)
	l.emitToAudit(ctx, event, requestID, attributes)
}

func (l *Logger) logToText(ctx context.Context, event string, attributes []any) {
	if l.textLogger == nil {
		return
	}
	args := append(attributes, "event", event, "log_type", "audit")
	l.textLogger.InfoContext(ctx, event, args...)
}

func (l *Logger) emitToAudit(ctx context.Context, event, requestID string, attributes []any) {
	if l.emitter == nil {
		return
	}

	rxIDStr := extractString(attributes, "prescription_id")
	credIDStr := extractString(attributes, "credential_id")
	actor := extractString(attributes, "actor")
	reason := extractString(attributes, "reason")
	decision := extractString(attributes, "decision")

	// Best-effort ID parsing - ignore parse errors for audit
	rxID, _ := id.ParsePrescriptionID(rxIDStr)   //nolint:errcheck // best-effort extraction for audit
	credID, _ := id.ParseCredentialID(credIDStr) //nolint:errcheck // best-effort extraction for audit

	err := l.emitter.Emit(ctx, Event{
		PrescriptionID: rxID,
		CredentialID:   credID,
		Subject:        rxIDStr,
		Action:         event,
		Actor:          actor,
		Decision:       decision,
		Reason:         reason,
		RequestID:      requestID,
	})
	if err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event,
		)
	}
}

// extractString returns the string value following key in a flat
// key/value attribute list, or "" when absent.
func extractString(attributes []any, key string) string {
	for i := 0; i+1 < len(attributes); i += 2 {
		k, ok := attributes[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attributes[i+1].(string); ok {
			return v
		}
	}
	return ""
}
