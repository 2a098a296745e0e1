/*-------------------------------------------------------------------------
 *
 * log_context.go
 *    Log context helpers for structured logging
 *
 * Provides helpers for consistent structured logging with request_id,
 * correlation_id, run_id, agent_key, department fields across all
 * components.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/metrics/log_context.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	requestIDKey     contextKey = "request_id"
	correlationIDKey contextKey = "correlation_id"
	runIDKey         contextKey = "run_id"
	agentKeyKey      contextKey = "agent_key"
	departmentKey    contextKey = "department"
)

/* InitLogging configures the global zerolog logger */
func InitLogging(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

/* WithLogContext adds logging fields to context */
func WithLogContext(ctx context.Context, requestID, correlationID, runID, agentKey, department string) context.Context {
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}
	if correlationID != "" {
		ctx = context.WithValue(ctx, correlationIDKey, correlationID)
	}
	if runID != "" {
		ctx = context.WithValue(ctx, runIDKey, runID)
	}
	if agentKey != "" {
		ctx = context.WithValue(ctx, agentKeyKey, agentKey)
	}
	if department != "" {
		ctx = context.WithValue(ctx, departmentKey, department)
	}
	return ctx
}

/* WithRunIDLogContext adds run ID to log context */
func WithRunIDLogContext(ctx context.Context, runID uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey, runID.String())
}

/* WithAgentKeyLogContext adds agent key to log context */
func WithAgentKeyLogContext(ctx context.Context, agentKey string) context.Context {
	return context.WithValue(ctx, agentKeyKey, agentKey)
}

/* GetRequestIDFromContext gets request ID from context */
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

/* GetCorrelationIDFromContext gets correlation ID from context */
func GetCorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

/* GetRunIDFromContext gets run ID from context */
func GetRunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	if id, ok := ctx.Value(runIDKey).(uuid.UUID); ok {
		return id.String()
	}
	return ""
}

/* GetAgentKeyFromContext gets agent key from context */
func GetAgentKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(agentKeyKey).(string); ok {
		return key
	}
	return ""
}

/* GetDepartmentFromContext gets department key from context */
func GetDepartmentFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(departmentKey).(string); ok {
		return key
	}
	return ""
}

/* LoggerFromContext creates a zerolog logger with fields from context */
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	logger := log.Logger

	requestID := GetRequestIDFromContext(ctx)
	correlationID := GetCorrelationIDFromContext(ctx)
	runID := GetRunIDFromContext(ctx)
	agentKey := GetAgentKeyFromContext(ctx)
	department := GetDepartmentFromContext(ctx)

	if requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	if correlationID != "" {
		logger = logger.With().Str("correlation_id", correlationID).Logger()
	}
	if runID != "" {
		logger = logger.With().Str("run_id", runID).Logger()
	}
	if agentKey != "" {
		logger = logger.With().Str("agent_key", agentKey).Logger()
	}
	if department != "" {
		logger = logger.With().Str("department", department).Logger()
	}

	return logger
}

/* LogWithContext logs a message with context fields */
func LogWithContext(ctx context.Context, level zerolog.Level, message string, fields map[string]interface{}) {
	logger := LoggerFromContext(ctx)
	event := logger.WithLevel(level)

	for key, value := range fields {
		event = event.Interface(key, value)
	}

	event.Msg(message)
}

/* DebugWithContext logs a debug message with context */
func DebugWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.DebugLevel, message, fields)
}

/* InfoWithContext logs an info message with context */
func InfoWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.InfoLevel, message, fields)
}

/* WarnWithContext logs a warning message with context */
func WarnWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.WarnLevel, message, fields)
}

/* ErrorWithContext logs an error message with context */
func ErrorWithContext(ctx context.Context, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogWithContext(ctx, zerolog.ErrorLevel, message, fields)
}
