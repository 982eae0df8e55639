package database

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"helpmeout/internal/logging"
)

// hashToken returns the stored form of a session token. Only the SHA-256
// of the token is persisted.
func hashToken(token string) (string, error) {
	tokenBytes, err := hex.DecodeString(token)
	if err != nil || len(tokenBytes) != 32 {
		return "", ErrInvalidSession
	}
	hash := sha256.Sum256(tokenBytes)
	return hex.EncodeToString(hash[:]), nil
}

// CreateSession creates a new session for a user and returns it with the
// unhashed token, which is only ever handed to the client.
func (d *Database) CreateSession(ctx context.Context, userID int64, duration time.Duration) (*Session, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_session", start, err) }()

	tokenBytes := make([]byte, 32)
	if _, err = rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	hash := sha256.Sum256(tokenBytes)
	tokenHash := hex.EncodeToString(hash[:])
	token := hex.EncodeToString(tokenBytes)

	now := time.Now()
	expiresAt := now.Add(duration)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?)",
		userID, tokenHash, expiresAt.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	id, _ := result.LastInsertId()

	return &Session{
		ID:        id,
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// ValidateSession resolves a session token to its active user. Unknown,
// malformed and expired tokens, and tokens of deleted users, all yield
// ErrInvalidSession.
func (d *Database) ValidateSession(ctx context.Context, token string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("validate_session", start, err) }()

	tokenHash, err := hashToken(token)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var expiresAt int64
	row := d.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, COALESCE(u.email, ''), u.password_hash, u.is_guest, u.is_deleted,
		       u.created_at, u.updated_at, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ?`,
		tokenHash,
	)

	var u User
	var isGuest, isDeleted int
	var createdAt, updatedAt int64
	err = row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &isGuest, &isDeleted,
		&createdAt, &updatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrInvalidSession
		}
		return nil, err
	}

	if time.Now().Unix() > expiresAt || isDeleted != 0 {
		// Clean up in background so validation never waits on the write lock.
		go func() {
			if delErr := d.deleteSessionByHash(context.Background(), tokenHash); delErr != nil {
				logging.Error("failed to delete expired session: %v", delErr)
			}
		}()
		err = ErrInvalidSession
		return nil, err
	}

	u.IsGuest = isGuest != 0
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

// ExtendSession pushes a session's expiry to now+duration (sliding
// expiration).
func (d *Database) ExtendSession(ctx context.Context, token string, duration time.Duration) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("extend_session", start, err) }()

	tokenHash, err := hashToken(token)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx,
		"UPDATE sessions SET expires_at = ? WHERE token = ?",
		time.Now().Add(duration).Unix(), tokenHash,
	)
	return err
}

func (d *Database) deleteSessionByHash(ctx context.Context, tokenHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", tokenHash)
	return err
}

// DeleteSession removes a session.
func (d *Database) DeleteSession(ctx context.Context, token string) error {
	tokenHash, err := hashToken(token)
	if err != nil {
		return err
	}
	return d.deleteSessionByHash(ctx, tokenHash)
}

// DeleteUserSessions removes every session of a user.
func (d *Database) DeleteUserSessions(ctx context.Context, userID int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_sessions", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	return err
}

// CleanExpiredSessions removes expired sessions and passcodes.
func (d *Database) CleanExpiredSessions(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("clean_expired_sessions", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().Unix()
	result, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", now)
	if err != nil {
		return 0, err
	}
	removed, _ := result.RowsAffected()

	if _, err = d.db.ExecContext(ctx, "DELETE FROM otps WHERE expires_at < ?", now); err != nil {
		return removed, err
	}
	return removed, nil
}
