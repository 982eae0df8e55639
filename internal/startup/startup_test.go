package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// unsetEnv clears key for the duration of the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		setEnv   bool
		want     string
	}{
		{"Returns default when env var not set", "", false, "default"},
		{"Returns env value when set", "custom", true, "custom"},
		{"Returns default when env var is empty", "", true, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, "HELPMEOUT_TEST_VAR")
			if tt.setEnv {
				t.Setenv("HELPMEOUT_TEST_VAR", tt.envValue)
			}
			if got := getEnv("HELPMEOUT_TEST_VAR", "default"); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("HELPMEOUT_TEST_BOOL", tt.value)
			if got := getEnvBool("HELPMEOUT_TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt64(t *testing.T) {
	tests := []struct {
		value string
		want  int64
	}{
		{"", 42},
		{"1048576", 1048576},
		{"-5", -5},
		{"12abc", 42},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("HELPMEOUT_TEST_INT", tt.value)
			if got := getEnvInt64("HELPMEOUT_TEST_INT", 42); got != tt.want {
				t.Errorf("getEnvInt64(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"168h", 168 * time.Hour},
		{"soon", time.Minute},
		{"-1h", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("HELPMEOUT_TEST_DURATION", tt.value)
			if got := getEnvDuration("HELPMEOUT_TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example , ,https://b.example,")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("splitList() = %v", got)
	}
	if got := splitList(""); len(got) != 0 {
		t.Errorf("splitList(\"\") = %v, want empty", got)
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/srce/api/recording/{video_id}", "srce/api/recording"},
		{"/srce/api/login/", "srce/api/login"},
		{"/srce/api/", "srce/api"},
		{"/health", "health"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := getRouteGroup(tt.path); got != tt.want {
				t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetRoutes(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}

	r := mux.NewRouter()
	r.HandleFunc("/health", noop).Methods("GET").Name("health")
	api := r.PathPrefix("/srce/api").Subrouter()
	api.HandleFunc("/video/{video_id}", noop).Methods("PATCH", "DELETE")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	found := map[string]bool{}
	for _, route := range routes {
		found[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"GET /health",
		"PATCH /srce/api/video/{video_id}",
		"DELETE /srce/api/video/{video_id}",
	} {
		if !found[want] {
			t.Errorf("route %q not found in %v", want, routes)
		}
	}
}

func setConfigEnv(t *testing.T) (mediaDir, dbDir string) {
	t.Helper()
	base := t.TempDir()
	mediaDir = filepath.Join(base, "media")
	dbDir = filepath.Join(base, "db")

	t.Setenv("MEDIA_DIR", mediaDir)
	t.Setenv("DATABASE_DIR", dbDir)
	t.Setenv("ENV_FILE", filepath.Join(base, "missing.env"))
	for _, key := range []string{
		"PORT", "SMTP_HOST", "REQUIRE_SIGNUP_OTP", "DEEPGRAM_API_KEY",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "FACEBOOK_CLIENT_ID",
		"FACEBOOK_CLIENT_SECRET", "OAUTH_STATE_SECRET", "ARCHIVE_BUCKET",
		"MAX_CHUNK_BYTES", "THUMBNAIL_WIDTH", "THUMBNAIL_HEIGHT",
	} {
		unsetEnv(t, key)
	}
	return mediaDir, dbDir
}

func TestLoadConfigDefaults(t *testing.T) {
	mediaDir, dbDir := setConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.DatabasePath != filepath.Join(dbDir, "helpmeout.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.UploadDir != filepath.Join(mediaDir, "uploads") {
		t.Errorf("UploadDir = %q", cfg.UploadDir)
	}
	if info, err := os.Stat(cfg.UploadDir); err != nil || !info.IsDir() {
		t.Errorf("upload directory not created: %v", err)
	}
	if cfg.MaxChunkBytes != 32<<20 {
		t.Errorf("MaxChunkBytes = %d, want %d", cfg.MaxChunkBytes, 32<<20)
	}
	if cfg.SessionDuration != 7*24*time.Hour {
		t.Errorf("SessionDuration = %v", cfg.SessionDuration)
	}
	if cfg.OTPTTL != 10*time.Minute {
		t.Errorf("OTPTTL = %v", cfg.OTPTTL)
	}
	if cfg.ThumbnailWidth != 640 || cfg.ThumbnailHeight != 360 {
		t.Errorf("thumbnail size = %dx%d", cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	}
	if cfg.MailEnabled() || cfg.RequireSignupOTP {
		t.Error("mail should be disabled without SMTP_HOST")
	}
	if cfg.TranscriptionEnabled() {
		t.Error("transcription should be disabled without an API key")
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	setConfigEnv(t)
	t.Setenv("MAX_CHUNK_BYTES", "-1")
	t.Setenv("THUMBNAIL_WIDTH", "0")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MaxChunkBytes != 32<<20 {
		t.Errorf("MaxChunkBytes = %d, want default", cfg.MaxChunkBytes)
	}
	if cfg.ThumbnailWidth != 640 || cfg.ThumbnailHeight != 360 {
		t.Errorf("thumbnail size = %dx%d, want 640x360", cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	}
}

func TestLoadConfigProcessorWorkers(t *testing.T) {
	setConfigEnv(t)
	t.Setenv("PROCESSOR_WORKERS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ProcessorWorkers != 2 {
		t.Errorf("ProcessorWorkers = %d, want 2", cfg.ProcessorWorkers)
	}

	t.Setenv("PROCESSOR_WORKERS", "64")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ProcessorWorkers != maxProcessorWorkers {
		t.Errorf("ProcessorWorkers = %d, want cap %d", cfg.ProcessorWorkers, maxProcessorWorkers)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	setConfigEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "SMTP_HOST=smtp.example.com\nPORT=9001\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", envFile)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SMTP.Host != "smtp.example.com" {
		t.Errorf("SMTP.Host = %q, want value from env file", cfg.SMTP.Host)
	}
	if cfg.Port != "9001" {
		t.Errorf("Port = %q, want 9001", cfg.Port)
	}
	if !cfg.RequireSignupOTP {
		t.Error("RequireSignupOTP should default to true when mail is enabled")
	}
}

func TestLoadConfigRequiresStateSecret(t *testing.T) {
	setConfigEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when OAuth is configured without OAUTH_STATE_SECRET")
	}
}

func TestLoadConfigDatabaseDirIsFile(t *testing.T) {
	setConfigEnv(t)

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATABASE_DIR", file)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_DIR is a file")
	}
}
