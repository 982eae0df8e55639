package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"helpmeout/internal/metrics"
)

func TestFormatW3CLine(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/srce/api/video/abc.mp4?x=1", http.NoBody)
	req.RemoteAddr = "10.0.0.5:51234"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11)")

	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	m := httpsnoop.Metrics{Code: http.StatusPartialContent, Written: 1024, Duration: 250 * time.Millisecond}

	got := formatW3CLine(req, "req-1", m, now)
	want := `2024-03-09 14:05:07 10.0.0.5 GET /srce/api/video/abc.mp4 x=1 206 1024 250 req-1 "Mozilla/5.0 (X11)" -`
	if got != want {
		t.Errorf("formatW3CLine() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatW3CLineDashesAndSanitizes(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/srce/api/login/", http.NoBody)
	req.RemoteAddr = "10.0.0.5:51234"
	req.Header.Set("Referer", "http://evil\nforged line")

	got := formatW3CLine(req, "", httpsnoop.Metrics{Code: http.StatusOK}, time.Now().UTC())

	if strings.Contains(got, "\n") {
		t.Errorf("log line contains a newline: %q", got)
	}
	fields := strings.Fields(got)
	// query, request id and user agent are empty
	if fields[5] != "-" || fields[9] != "-" || fields[10] != "-" {
		t.Errorf("expected dashes for empty fields, got %q", got)
	}
}

func TestDefaultLoggingConfig(t *testing.T) {
	config := DefaultLoggingConfig()

	if !config.LogHealthChecks {
		t.Error("Expected LogHealthChecks to be true by default")
	}

	if config.LogChunkUploads {
		t.Error("Expected LogChunkUploads to be false by default")
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"regular request", "/srce/api/recording/abc", DefaultLoggingConfig(), false},
		{"skip path", "/favicon.ico", DefaultLoggingConfig(), true},
		{"health logged", "/health", LoggingConfig{LogHealthChecks: true}, false},
		{"health skipped", "/readyz", LoggingConfig{LogHealthChecks: false}, true},
		{"chunk upload skipped", "/srce/api/upload-blob/", LoggingConfig{}, true},
		{"chunk upload logged", "/srce/api/upload-blob/", LoggingConfig{LogChunkUploads: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.want {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLoggerMiddlewareServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/srce/api/recording/abc", http.NoBody)
	w := httptest.NewRecorder()
	Logger(DefaultLoggingConfig())(handler).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestLoggerMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/srce/api/signup/", "/health", "/srce/api/upload-blob/"} {
		req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
		w := httptest.NewRecorder()

		Logger(DefaultLoggingConfig())(handler).ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Errorf("%s: expected status 201, got %d", path, w.Code)
		}
		if w.Body.String() != "ok" {
			t.Errorf("%s: body not passed through, got %q", path, w.Body.String())
		}
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nbreak", "line break"},
		{"cr\rlf", "cr lf"},
		{"nul\x00byte", "nulbyte"},
		{"ansi\x1b[31mred", "ansi[31mred"},
		{"tab\tkept", "tab\tkept"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.5:51234"
	if got := getClientIP(req); got != "10.0.0.5" {
		t.Errorf("RemoteAddr: got %q", got)
	}

	req.Header.Set("X-Real-IP", "192.168.1.9")
	if got := getClientIP(req); got != "192.168.1.9" {
		t.Errorf("X-Real-IP: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := getClientIP(req); got != "203.0.113.7" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}
}

func TestEscapeW3CField(t *testing.T) {
	if got := escapeW3CField("curl/8.0"); got != "curl/8.0" {
		t.Errorf("unexpected escaping: %q", got)
	}
	if got := escapeW3CField(`Mozilla/5.0 (X11) "quoted"`); got != `"Mozilla/5.0 (X11) ""quoted"""` {
		t.Errorf("unexpected escaping: %q", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header %q does not match context id %q", w.Header().Get(RequestIDHeader), seen)
	}

	incoming := uuid.NewString()
	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(RequestIDHeader, incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Errorf("expected incoming id %q to be kept, got %q", incoming, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(RequestIDHeader, "bad\nid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad\nid" {
		t.Error("malformed incoming id should be replaced")
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

func TestDefaultMetricsConfig(t *testing.T) {
	config := DefaultMetricsConfig()
	want := map[string]bool{"/metrics": true, "/health": true, "/livez": true, "/readyz": true}
	for _, p := range config.SkipPaths {
		delete(want, p)
	}
	if len(want) != 0 {
		t.Errorf("missing skip paths: %v", want)
	}
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/srce/api/recording/{video_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/srce/api/recording/{video_id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"abc", "def", "ghi"} {
		req := httptest.NewRequest(http.MethodGet, "/srce/api/recording/"+id, http.NoBody)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("expected 3 requests recorded under the route template, got %v", got)
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if got := testutil.ToFloat64(counter) - before; got != 0 {
		t.Errorf("expected health check to be skipped, recorded %v", got)
	}
}

func TestRouteTemplateUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody)
	if got := routeTemplate(req); got != "unmatched" {
		t.Errorf("routeTemplate() = %q, want unmatched", got)
	}
}
