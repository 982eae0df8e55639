package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"helpmeout/internal/logging"
	"helpmeout/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages all persistence for users, sessions, passcodes and videos.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (creating if needed) the SQLite database at dbPath and applies
// the schema. dbPath is the full path to the database FILE; its parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors; foreign keys
	// must be enabled per connection for the video cascades to fire.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE COLLATE NOCASE,
		email TEXT,
		password_hash TEXT NOT NULL,
		is_guest INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL UNIQUE,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS otps (
		purpose TEXT NOT NULL,
		subject TEXT NOT NULL COLLATE NOCASE,
		code_hash TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (purpose, subject)
	);

	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL COLLATE NOCASE,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		status TEXT NOT NULL DEFAULT 'processing'
			CHECK (status IN ('processing', 'completed', 'failed')),
		original_location TEXT,
		compressed_location TEXT,
		thumbnail_location TEXT,
		transcript_location TEXT,
		audio_location TEXT,
		video_length REAL,
		is_public INTEGER NOT NULL DEFAULT 1,
		public_expiry INTEGER,
		error_message TEXT,
		FOREIGN KEY (username) REFERENCES users(username) ON DELETE CASCADE ON UPDATE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_videos_username ON videos(username);
	CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies schema changes to databases created by older builds.
func (d *Database) runMigrations(ctx context.Context) error {
	columns := []struct {
		table, name, ddl string
	}{
		{"videos", "audio_location", "ALTER TABLE videos ADD COLUMN audio_location TEXT"},
		{"videos", "video_length", "ALTER TABLE videos ADD COLUMN video_length REAL"},
		{"videos", "error_message", "ALTER TABLE videos ADD COLUMN error_message TEXT"},
		{"users", "is_guest", "ALTER TABLE users ADD COLUMN is_guest INTEGER NOT NULL DEFAULT 0"},
	}

	for _, c := range columns {
		var exists bool
		err := d.db.QueryRowContext(ctx,
			"SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?",
			c.table, c.name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for %s.%s column: %w", c.table, c.name, err)
		}
		if exists {
			continue
		}

		logging.Info("Migrating database: adding %s column to %s table", c.name, c.table)
		if _, err := d.db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("failed to add %s.%s column: %w", c.table, c.name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the database connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error. The write lock is held for the whole transaction.
func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	txStart := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err = fn(tx); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(txStart).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(txStart).Seconds())
	return tx.Commit()
}

// GetStats returns inventory counts for the metrics collector.
func (d *Database) GetStats(ctx context.Context) (metrics.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := metrics.Stats{VideosByStatus: make(map[string]int)}

	if err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE is_deleted = 0",
	).Scan(&stats.Users); err != nil {
		return stats, fmt.Errorf("failed to count users: %w", err)
	}

	if err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE expires_at >= ?", time.Now().Unix(),
	).Scan(&stats.Sessions); err != nil {
		return stats, fmt.Errorf("failed to count sessions: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM videos GROUP BY status")
	if err != nil {
		return stats, fmt.Errorf("failed to count videos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err = rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.VideosByStatus[status] = count
	}
	err = rows.Err()

	d.updateConnectionMetrics()
	return stats, err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

func (d *Database) updateConnectionMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", path)
			}
		}
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
