package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength and MaxPasswordLength bound accepted passwords.
	// bcrypt ignores input past 72 bytes.
	MinPasswordLength = 6
	MaxPasswordLength = 72

	// MaxUsernameLength bounds usernames, which are also used in URLs.
	MaxUsernameLength = 64

	guestAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	usernameCleaner = regexp.MustCompile(`[^a-z0-9_.-]+`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]+$`)
	repeatedDots    = regexp.MustCompile(`\.{2,}`)
)

const userColumns = "id, username, COALESCE(email, ''), password_hash, is_guest, is_deleted, created_at, updated_at"

// NormalizeUsername returns the canonical (trimmed, lower-case) form of a
// username. Lookups are case-insensitive regardless.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername checks a normalized username: 1 to MaxUsernameLength
// characters from [a-z0-9_.-] with no "..". Errors wrap ErrInvalidUsername.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidUsername)
	case len(username) > MaxUsernameLength:
		return fmt.Errorf("%w: username must be at most %d characters", ErrInvalidUsername, MaxUsernameLength)
	case !usernamePattern.MatchString(username) || strings.Contains(username, ".."):
		return fmt.Errorf("%w: username may only contain letters, digits, '.', '_' and '-'", ErrInvalidUsername)
	}
	return nil
}

// ValidatePassword checks the password length limits.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var isGuest, isDeleted int
	var createdAt, updatedAt int64

	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&isGuest, &isDeleted, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	u.IsGuest = isGuest != 0
	u.IsDeleted = isDeleted != 0
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func randomPasswordHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func insertUser(ctx context.Context, tx *sql.Tx, username, email, hash string, guest bool) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_guest, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		username, nullString(email), hash, boolToInt(guest), now.Unix(), now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, _ := result.LastInsertId()
	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsGuest:      guest,
		CreatedAt:    time.Unix(now.Unix(), 0),
		UpdatedAt:    time.Unix(now.Unix(), 0),
	}, nil
}

// CreateUser registers a user with a bcrypt-hashed password.
// Returns ErrUsernameTaken when the name is in use (case-insensitive),
// including by a deleted account.
func (d *Database) CreateUser(ctx context.Context, username, email, password string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_user", start, err) }()

	username = NormalizeUsername(username)
	if err = ValidateUsername(username); err != nil {
		return nil, err
	}
	if err = ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user *User
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		user, txErr = insertUser(ctx, tx, username, strings.TrimSpace(email), string(hash), false)
		return txErr
	})
	return user, err
}

// CreateGuestUser creates a user that owns recordings made without a
// session. An empty username generates one of the form guest_xxxxxxxxxx.
func (d *Database) CreateGuestUser(ctx context.Context, username string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_user", start, err) }()

	username = NormalizeUsername(username)
	if username == "" {
		suffix, genErr := gonanoid.Generate(guestAlphabet, 10)
		if genErr != nil {
			err = fmt.Errorf("failed to generate guest username: %w", genErr)
			return nil, err
		}
		username = "guest_" + suffix
	}

	hash, err := randomPasswordHash()
	if err != nil {
		return nil, err
	}

	var user *User
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		user, txErr = insertUser(ctx, tx, username, "", hash, true)
		return txErr
	})
	return user, err
}

// SanitizeDisplayName turns a provider display name into a username
// candidate that passes ValidateUsername: lower-cased, spaces replaced by
// underscores, other characters outside [a-z0-9_.-] dropped, dot runs
// collapsed, and short enough to take a collision suffix.
func SanitizeDisplayName(displayName string) string {
	name := strings.ReplaceAll(NormalizeUsername(displayName), " ", "_")
	name = usernameCleaner.ReplaceAllString(name, "")
	name = repeatedDots.ReplaceAllString(name, ".")
	if len(name) > MaxUsernameLength-8 {
		name = name[:MaxUsernameLength-8]
	}
	name = strings.Trim(name, "._-")
	if name == "" {
		return "user"
	}
	return name
}

// CreateOAuthUser creates a user for a first-time single sign-on. The
// username is derived from displayName and suffixed _2, _3, ... until it is
// unique. The password is random so the account can only sign in through
// the provider until a password reset.
func (d *Database) CreateOAuthUser(ctx context.Context, displayName, email string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_user", start, err) }()

	hash, err := randomPasswordHash()
	if err != nil {
		return nil, err
	}

	base := SanitizeDisplayName(displayName)

	var user *User
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		username, txErr := uniqueUsername(ctx, tx, base)
		if txErr != nil {
			return txErr
		}
		user, txErr = insertUser(ctx, tx, username, strings.TrimSpace(email), hash, false)
		return txErr
	})
	return user, err
}

// uniqueUsername returns base, or base_N for the smallest N >= 2 not in use.
func uniqueUsername(ctx context.Context, tx *sql.Tx, base string) (string, error) {
	candidate := base
	for suffix := 2; ; suffix++ {
		var taken bool
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) > 0 FROM users WHERE username = ?", candidate,
		).Scan(&taken)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// GetUserByUsername returns an active (not deleted) user.
func (d *Database) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_user", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	user, err := scanUser(d.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? AND is_deleted = 0",
		NormalizeUsername(username),
	))
	return user, err
}

// GetUserByEmail returns the active user registered with email.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_user", start, err) }()

	email = strings.TrimSpace(email)
	if email == "" {
		err = ErrNotFound
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	user, err := scanUser(d.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? COLLATE NOCASE AND is_deleted = 0 ORDER BY id LIMIT 1",
		email,
	))
	return user, err
}

// UsernameExists reports whether username is taken, including by deleted
// accounts whose names stay reserved.
func (d *Database) UsernameExists(ctx context.Context, username string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_user", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) > 0 FROM users WHERE username = ?", NormalizeUsername(username),
	).Scan(&exists)
	return exists, err
}

// AuthenticateUser checks a username/password pair. It returns ErrNotFound
// for unknown or deleted users and ErrInvalidCredentials for a wrong
// password or a guest account.
func (d *Database) AuthenticateUser(ctx context.Context, username, password string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("validate_password", start, err) }()

	user, err := d.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if user.IsGuest {
		err = ErrInvalidCredentials
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		err = ErrInvalidCredentials
		return nil, err
	}

	return user, nil
}

// SetPassword replaces a user's password and invalidates all of their
// sessions.
func (d *Database) SetPassword(ctx context.Context, userID int64, password string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_password", start, err) }()

	if err = ValidatePassword(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, txErr := tx.ExecContext(ctx,
			"UPDATE users SET password_hash = ?, is_guest = 0, updated_at = ? WHERE id = ? AND is_deleted = 0",
			string(hash), time.Now().Unix(), userID,
		)
		if txErr != nil {
			return fmt.Errorf("failed to update password: %w", txErr)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrNotFound
		}

		if _, txErr = tx.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); txErr != nil {
			return fmt.Errorf("failed to invalidate sessions: %w", txErr)
		}
		return nil
	})
	return err
}

// RenameUser changes a username. Videos follow through ON UPDATE CASCADE.
func (d *Database) RenameUser(ctx context.Context, username, newUsername string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_user", start, err) }()

	username = NormalizeUsername(username)
	newUsername = NormalizeUsername(newUsername)
	if err = ValidateUsername(newUsername); err != nil {
		return nil, err
	}

	var user *User
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		current, txErr := scanUser(tx.QueryRowContext(ctx,
			"SELECT "+userColumns+" FROM users WHERE username = ? AND is_deleted = 0", username,
		))
		if txErr != nil {
			return txErr
		}

		// Changing only the case of the name is not a conflict.
		if newUsername != current.Username {
			var taken bool
			if txErr = tx.QueryRowContext(ctx,
				"SELECT COUNT(*) > 0 FROM users WHERE username = ? AND id != ?", newUsername, current.ID,
			).Scan(&taken); txErr != nil {
				return txErr
			}
			if taken {
				return ErrUsernameTaken
			}
		}

		if _, txErr = tx.ExecContext(ctx,
			"UPDATE users SET username = ?, updated_at = ? WHERE id = ?",
			newUsername, time.Now().Unix(), current.ID,
		); txErr != nil {
			if isUniqueViolation(txErr) {
				return ErrUsernameTaken
			}
			return fmt.Errorf("failed to rename user: %w", txErr)
		}

		current.Username = newUsername
		user = current
		return nil
	})
	return user, err
}

// SoftDeleteUser flags a user as deleted and ends their sessions. Their
// videos remain on disk until the account is purged.
func (d *Database) SoftDeleteUser(ctx context.Context, userID int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_user", start, err) }()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, txErr := tx.ExecContext(ctx,
			"UPDATE users SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0",
			time.Now().Unix(), userID,
		)
		if txErr != nil {
			return fmt.Errorf("failed to delete user: %w", txErr)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrNotFound
		}
		_, txErr = tx.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
		return txErr
	})
	return err
}

// PurgeUser permanently removes a user, deleted or not, together with their
// sessions and videos. It returns the removed videos so callers can delete
// the files behind them.
func (d *Database) PurgeUser(ctx context.Context, username string) ([]Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_user", start, err) }()

	username = NormalizeUsername(username)

	var videos []Video
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		videos, txErr = queryVideos(ctx, tx, "WHERE username = ?", username)
		if txErr != nil {
			return txErr
		}

		result, txErr := tx.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
		if txErr != nil {
			return fmt.Errorf("failed to purge user: %w", txErr)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrNotFound
		}
		return nil
	})
	return videos, err
}
