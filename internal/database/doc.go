// Package database provides SQLite persistence for the HelpMeOut server.
//
// It stores:
//   - users (including guest and soft-deleted accounts)
//   - sessions, identified by the SHA-256 of a random token
//   - one-time passcodes for signup and password reset, bcrypt-hashed
//   - videos and the paths of their processing artifacts
//
// Videos reference users by username with ON DELETE CASCADE and
// ON UPDATE CASCADE, so purging a user removes their videos and renaming a
// user carries ownership along. Foreign keys are enabled on every
// connection through the driver DSN.
//
// The database runs in WAL mode. Every query helper applies a timeout
// derived from the caller's context and records Prometheus metrics.
// Lookups return [ErrNotFound] when a row does not exist.
package database
