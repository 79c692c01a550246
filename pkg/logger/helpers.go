package logger

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerWithCaller adds caller information to the logger
func LoggerWithCaller(skip int) Logger {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return GetLogger()
	}

	parts := strings.Split(file, "/")
	filename := parts[len(parts)-1]

	return GetLogger().WithField("caller", fmt.Sprintf("%s:%d", filename, line))
}

// LogCapturedResponse logs one intercepted timeline response
func LogCapturedResponse(url string, statusCode, bodySize int) {
	fields := map[string]interface{}{
		"url":         url,
		"status_code": statusCode,
		"body_size":   bodySize,
	}

	switch {
	case statusCode == 429:
		GetLogger().WarnWithFields("Captured rate limited response", fields)
	case statusCode >= 400:
		GetLogger().WarnWithFields("Captured error response", fields)
	default:
		GetLogger().DebugWithFields("Captured timeline response", fields)
	}
}

// LogCooldown logs a pacing cooldown decision
func LogCooldown(reason string, duration time.Duration) {
	GetLogger().WithFields(map[string]interface{}{
		"reason":   reason,
		"duration": duration,
		"action":   "cooldown",
	}).Warn("Cooling down before further scrolling")
}

// LogRateLimitPause logs a hard provider rate limit
func LogRateLimitPause(reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"reason": reason,
		"action": "rate_limit_pause",
	}).Warn("Session paused by provider rate limit")
}

// LogExportProgress logs capture progress for a running session
func LogExportProgress(username string, captured, rows, scrolls int) {
	GetLogger().WithFields(map[string]interface{}{
		"username": username,
		"captured": captured,
		"rows":     rows,
		"scrolls":  scrolls,
	}).Info("Export progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	logger := GetLogger().WithField("component", component)

	if len(config) > 0 {
		logger = logger.WithFields(config)
	}

	logger.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// MustGetLogger gets the logger or panics if it fails
func MustGetLogger() Logger {
	logger := GetLogger()
	if logger == nil {
		panic("logger not initialized")
	}
	return logger
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
