package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"helpmeout/internal/logging"
	"helpmeout/internal/workers"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// maxProcessorWorkers caps concurrent ffmpeg pipelines regardless of CPU count.
const maxProcessorWorkers = 4

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// OAuthProviderConfig holds the client credentials of one identity provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether both credentials are present.
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// SMTPConfig holds outbound mail settings. An empty Host disables mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ArchiveConfig holds settings for mirroring artifacts to an S3-compatible
// bucket. An empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Config holds all application configuration
type Config struct {
	MediaDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	BaseURL         string
	CORSOrigins     []string
	CookieSecure    bool

	SessionDuration time.Duration
	OTPTTL          time.Duration
	ShutdownTimeout time.Duration
	StatsInterval   time.Duration

	MaxChunkBytes    int64
	RequireSignupOTP bool

	FFmpegPath      string
	FFprobePath     string
	ThumbnailWidth  int
	ThumbnailHeight int

	// ProcessorWorkers bounds concurrent post-upload jobs.
	ProcessorWorkers int

	DeepgramURL    string
	DeepgramAPIKey string

	StateSecret string
	Google      OAuthProviderConfig
	Facebook    OAuthProviderConfig

	SMTP    SMTPConfig
	Archive ArchiveConfig

	// Derived paths
	DatabasePath string
	UploadDir    string
}

// TranscriptionEnabled reports whether a Deepgram API key is configured.
func (c *Config) TranscriptionEnabled() bool {
	return c.DeepgramAPIKey != ""
}

// MailEnabled reports whether an SMTP host is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}

// LoadConfig loads and validates configuration from environment variables.
// Values from an optional .env file (ENV_FILE, default ".env") are loaded
// first and never override variables already present in the environment.
func LoadConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	envErr := godotenv.Load(envFile)

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	switch {
	case envErr == nil:
		logging.Info("  Loaded environment from %s", envFile)
	case errors.Is(envErr, fs.ErrNotExist):
		logging.Debug("  No %s file found, using process environment", envFile)
	default:
		return nil, fmt.Errorf("failed to load %s: %w", envFile, envErr)
	}

	mediaDir := getEnv("MEDIA_DIR", "/media")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	port := getEnv("PORT", "8000")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)

	cfg := &Config{
		Port:            port,
		MetricsPort:     metricsPort,
		MetricsEnabled:  metricsEnabled,
		LogHealthChecks: logHealthChecks,
		BaseURL:         strings.TrimRight(getEnv("BASE_URL", ""), "/"),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		CookieSecure:    getEnvBool("COOKIE_SECURE", false),

		SessionDuration: getEnvDuration("SESSION_DURATION", 7*24*time.Hour),
		OTPTTL:          getEnvDuration("OTP_TTL", 10*time.Minute),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		StatsInterval:   getEnvDuration("STATS_INTERVAL", time.Minute),

		MaxChunkBytes: getEnvInt64("MAX_CHUNK_BYTES", 32<<20),

		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:      getEnv("FFPROBE_PATH", "ffprobe"),
		ThumbnailWidth:   int(getEnvInt64("THUMBNAIL_WIDTH", 640)),
		ThumbnailHeight:  int(getEnvInt64("THUMBNAIL_HEIGHT", 360)),
		ProcessorWorkers: workers.ForCPU(maxProcessorWorkers),

		DeepgramURL:    strings.TrimRight(getEnv("DEEPGRAM_URL", "https://api.deepgram.com"), "/"),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),

		StateSecret: os.Getenv("OAUTH_STATE_SECRET"),
		Google: OAuthProviderConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		Facebook: OAuthProviderConfig{
			ClientID:     os.Getenv("FACEBOOK_CLIENT_ID"),
			ClientSecret: os.Getenv("FACEBOOK_CLIENT_SECRET"),
		},

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     int(getEnvInt64("SMTP_PORT", 587)),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "HelpMeOut <noreply@helpmeout.app>"),
		},
		Archive: ArchiveConfig{
			Bucket:    os.Getenv("ARCHIVE_BUCKET"),
			Prefix:    getEnv("ARCHIVE_PREFIX", "recordings"),
			Region:    getEnv("ARCHIVE_REGION", "us-east-1"),
			Endpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
			AccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
			SecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
		},
	}
	cfg.RequireSignupOTP = getEnvBool("REQUIRE_SIGNUP_OTP", cfg.MailEnabled())

	logging.Info("  MEDIA_DIR:           %s", mediaDir)
	logging.Info("  DATABASE_DIR:        %s", databaseDir)
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  BASE_URL:            %s", valueOrDefault(cfg.BaseURL, "(request host)"))
	logging.Info("  CORS_ORIGINS:        %s", strings.Join(cfg.CORSOrigins, ","))
	logging.Info("  SESSION_DURATION:    %v", cfg.SessionDuration)
	logging.Info("  OTP_TTL:             %v", cfg.OTPTTL)
	logging.Info("  MAX_CHUNK_BYTES:     %d", cfg.MaxChunkBytes)
	logging.Info("  REQUIRE_SIGNUP_OTP:  %v", cfg.RequireSignupOTP)
	logging.Info("  FFMPEG_PATH:         %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", cfg.FFprobePath)
	logging.Info("  THUMBNAIL_SIZE:      %dx%d", cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	logging.Info("  PROCESSOR_WORKERS:   %d", cfg.ProcessorWorkers)
	logging.Info("  DEEPGRAM_URL:        %s", cfg.DeepgramURL)
	logging.Info("  DEEPGRAM_API_KEY:    %s", redact(cfg.DeepgramAPIKey))
	logging.Info("  SMTP_HOST:           %s", valueOrDefault(cfg.SMTP.Host, "(disabled)"))
	logging.Info("  ARCHIVE_BUCKET:      %s", valueOrDefault(cfg.Archive.Bucket, "(disabled)"))
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if cfg.ThumbnailWidth <= 0 || cfg.ThumbnailHeight <= 0 {
		logging.Warn("  Invalid thumbnail size, using default: 640x360")
		cfg.ThumbnailWidth, cfg.ThumbnailHeight = 640, 360
	}
	if cfg.MaxChunkBytes <= 0 {
		logging.Warn("  Invalid MAX_CHUNK_BYTES, using default: %d", 32<<20)
		cfg.MaxChunkBytes = 32 << 20
	}
	if cfg.StateSecret == "" && (cfg.Google.Enabled() || cfg.Facebook.Enabled()) {
		return nil, fmt.Errorf("OAUTH_STATE_SECRET is required when an OAuth provider is configured")
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	var err error
	mediaDir, err = filepath.Abs(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	logging.Info("  Media directory (absolute): %s", mediaDir)

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	cfg.MediaDir = mediaDir
	cfg.DatabaseDir = databaseDir
	cfg.DatabasePath = filepath.Join(databaseDir, "helpmeout.db")
	cfg.UploadDir = filepath.Join(mediaDir, "uploads")

	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	// Recordings cannot be stored without a writable upload directory.
	if err := ensureDirectory(cfg.UploadDir, "uploads"); err != nil {
		return nil, fmt.Errorf("upload directory error: %w", err)
	}
	if err := testWriteAccess(cfg.UploadDir); err != nil {
		return nil, fmt.Errorf("upload directory is not writable (required for recordings): %w", err)
	}
	logging.Info("  [OK] Upload directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:      ENABLED (required)")
	logging.Info("    Uploads:       ENABLED (required)")
	logging.Info("    Transcription: %s", enabledString(cfg.TranscriptionEnabled()))
	logging.Info("    Email:         %s", enabledString(cfg.MailEnabled()))
	logging.Info("    Archive:       %s", enabledString(cfg.Archive.Bucket != ""))
	logging.Info("    Google SSO:    %s", enabledString(cfg.Google.Enabled()))
	logging.Info("    Facebook SSO:  %s", enabledString(cfg.Facebook.Enabled()))
	logging.Info("    Metrics:       %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func redact(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "********"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogTranscoderInit logs transcoder initialization and checks FFmpeg
func LogTranscoderInit(ffmpegPath, ffprobePath string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	for _, bin := range []string{ffmpegPath, ffprobePath} {
		if err := checkBinary(bin); err != nil {
			logging.Warn("  %s check failed: %v", bin, err)
			logging.Warn("  Uploaded recordings will be marked failed during processing")
		} else {
			logging.Info("  [OK] %s is available", bin)
		}
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			// Subrouters registered with PathPrefix only
			return nil
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 3)
	first := parts[0]

	// /srce/api/<resource>/...
	if first == "srce" && len(parts) > 2 && strings.HasPrefix(parts[1], "api") {
		sub := strings.SplitN(parts[2], "/", 2)
		if sub[0] == "" {
			return "srce/api"
		}
		return "srce/api/" + sub[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/srce/api/", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
    __  __     __      __  ___     ____        __
   / / / /__  / /___  /  |/  /__  / __ \__  __/ /_
  / /_/ / _ \/ / __ \/ /|_/ / _ \/ / / / / / / __/
 / __  /  __/ / /_/ / /  / /  __/ /_/ / /_/ / /_
/_/ /_/\___/_/ .___/_/  /_/\___/\____/\__,_/\__/
            /_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkBinary(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", name, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s version: %s", name, strings.TrimSpace(line))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
