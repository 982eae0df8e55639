// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// An optional .env file (path in ENV_FILE, default ".env") is read first
// with godotenv; variables already set in the process environment win.
//
//   - MEDIA_DIR: Root for uploaded recordings and derived artifacts (default: /media)
//   - DATABASE_DIR: Directory holding helpmeout.db (default: /database)
//   - PORT: HTTP server port (default: 8000)
//   - METRICS_PORT / METRICS_ENABLED: Prometheus listener (default: 9090, true)
//   - BASE_URL: Public origin used when building links in emails
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
//   - SESSION_DURATION, OTP_TTL, SHUTDOWN_TIMEOUT: Go durations
//   - MAX_CHUNK_BYTES: Largest decoded chunk accepted (default: 32 MiB)
//   - FFMPEG_PATH / FFPROBE_PATH: Encoder binaries (default: from PATH)
//   - THUMBNAIL_WIDTH / THUMBNAIL_HEIGHT: Thumbnail bounding box (default: 640x360)
//   - DEEPGRAM_URL / DEEPGRAM_API_KEY: Speech-to-text API; no key disables transcripts
//   - SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM
//   - REQUIRE_SIGNUP_OTP: Defaults to true when SMTP is configured
//   - GOOGLE_CLIENT_ID/SECRET, FACEBOOK_CLIENT_ID/SECRET, OAUTH_STATE_SECRET
//   - ARCHIVE_BUCKET, ARCHIVE_PREFIX, ARCHIVE_REGION, ARCHIVE_ENDPOINT,
//     ARCHIVE_ACCESS_KEY, ARCHIVE_SECRET_KEY: Optional S3-compatible mirror
//   - LOG_LEVEL, LOG_FORMAT, LOG_HEALTH_CHECKS
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//
//	go build -ldflags "-X helpmeout/internal/startup.Version=1.2.0"
package startup
