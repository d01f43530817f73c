// Package logger provides the process-wide structured logger.
//
// Call sites pass alternating key/value pairs:
//
//	logger.Info("campaign claimed", "campaign_id", id, "workers", n)
//
// Output is JSON via zap's production encoder. Values under email-bearing
// keys, and any email address embedded in string values, are masked unless
// redaction is switched off.
package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var zapLevels = map[Level]zapcore.Level{
	DEBUG: zapcore.DebugLevel,
	INFO:  zapcore.InfoLevel,
	WARN:  zapcore.WarnLevel,
	ERROR: zapcore.ErrorLevel,
}

var (
	mu        sync.RWMutex
	base      *zap.SugaredLogger
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	redactPII atomic.Bool
)

func init() {
	redactPII.Store(true)
	base = newProduction().Sugar()
}

func newProduction() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// ParseLevel maps a config string to a Level. Unknown values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { level.SetLevel(zapLevels[l]) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { redactPII.Store(r) }

// Use swaps the underlying zap logger. Tests use it with zaptest/observer.
func Use(l *zap.Logger) {
	mu.Lock()
	base = l.Sugar()
	mu.Unlock()
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	_ = current().Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { current().Debugw(msg, prepare(fields)...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { current().Infow(msg, prepare(fields)...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { current().Warnw(msg, prepare(fields)...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { current().Errorw(msg, prepare(fields)...) }

// prepare stringifies keys and errors and applies redaction. A trailing key
// without a value is dropped.
func prepare(fields []interface{}) []interface{} {
	out := make([]interface{}, 0, len(fields))
	redact := redactPII.Load()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fields[i+1]
		switch v := val.(type) {
		case error:
			if v != nil {
				val = v.Error()
			}
		case fmt.Stringer:
			val = v.String()
		}
		if s, ok := val.(string); ok && redact {
			val = redactPIIValue(key, s)
		}
		out = append(out, key, val)
	}
	return out
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "recipient") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
