package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"

	"helpmeout/internal/logging"
)

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths []string
	// LogHealthChecks includes probe endpoints in the access log.
	LogHealthChecks bool
	// LogChunkUploads includes every upload-blob request. Recorders send
	// one every few seconds, so these are off by default.
	LogChunkUploads bool
}

// DefaultLoggingConfig returns the default configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{"/favicon.ico"},
		LogHealthChecks: true,
	}
}

const (
	w3cSoftware = "HelpMeOut/1.0"
	w3cFields   = "date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken s(X-Request-ID) cs(User-Agent) cs(Referer)"
)

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// Logger returns HTTP access log middleware using the W3C Extended Log
// Format. Server errors are logged at warn level. The wrapped writer keeps
// io.ReaderFrom, so video responses still go out through sendfile.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	logging.Info("#Software: %s", w3cSoftware)
	logging.Info("#Version: 1.0")
	logging.Info("#Fields: %s", w3cFields)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			m := httpsnoop.CaptureMetrics(next, w, r)

			line := formatW3CLine(r, w.Header().Get(RequestIDHeader), m, time.Now().UTC())
			if m.Code >= http.StatusInternalServerError {
				logging.Warn("%s", line)
				return
			}
			logging.Info("%s", line)
		})
	}
}

// formatW3CLine renders one access log line. Field order matches w3cFields.
// Every user-controlled field is sanitized against log injection.
func formatW3CLine(r *http.Request, requestID string, m httpsnoop.Metrics, now time.Time) string {
	return fmt.Sprintf("%s %s %s %s %s %s %d %d %d %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		sanitizeLogField(getClientIP(r)),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		dashIfEmpty(sanitizeLogField(r.URL.RawQuery)),
		m.Code,
		m.Written,
		m.Duration.Milliseconds(),
		dashIfEmpty(sanitizeLogField(requestID)),
		dashIfEmpty(escapeW3CField(sanitizeLogField(r.Header.Get("User-Agent")))),
		dashIfEmpty(sanitizeLogField(r.Header.Get("Referer"))),
	)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sanitizeLogField drops control characters that could forge log lines or
// inject terminal escapes. Newlines become spaces; tabs are kept.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20:
			return -1
		default:
			return r
		}
	}, s)
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	if !config.LogHealthChecks && healthCheckPaths[path] {
		return true
	}

	return !config.LogChunkUploads && strings.HasPrefix(path, "/srce/api/upload-blob")
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// escapeW3CField quotes values containing whitespace or quotes, doubling
// embedded quotes.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
