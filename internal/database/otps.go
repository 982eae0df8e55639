package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// generateOTP returns a uniformly random six digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+otpMin), nil
}

// IssueOTP creates a passcode for purpose and subject (a username), replacing
// any earlier one, and returns the plaintext code for delivery. Only a
// bcrypt hash is stored.
func (d *Database) IssueOTP(ctx context.Context, purpose OTPPurpose, subject string, ttl time.Duration) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("issue_otp", start, err) }()

	code, err := generateOTP()
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passcode: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO otps (purpose, subject, code_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(purpose, subject) DO UPDATE SET
			code_hash = excluded.code_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		string(purpose), NormalizeUsername(subject), string(hash), now.Add(ttl).Unix(), now.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store passcode: %w", err)
	}

	return code, nil
}

// ConsumeOTP verifies code for purpose and subject and deletes it on
// success, so each code works once. Missing, expired and wrong codes all
// return ErrInvalidOTP.
func (d *Database) ConsumeOTP(ctx context.Context, purpose OTPPurpose, subject, code string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("consume_otp", start, err) }()

	subject = NormalizeUsername(subject)

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		var hash string
		var expiresAt int64
		scanErr := tx.QueryRowContext(ctx,
			"SELECT code_hash, expires_at FROM otps WHERE purpose = ? AND subject = ?",
			string(purpose), subject,
		).Scan(&hash, &expiresAt)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return ErrInvalidOTP
		}
		if scanErr != nil {
			return scanErr
		}

		if time.Now().Unix() > expiresAt {
			return ErrInvalidOTP
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
			return ErrInvalidOTP
		}

		_, delErr := tx.ExecContext(ctx,
			"DELETE FROM otps WHERE purpose = ? AND subject = ?", string(purpose), subject,
		)
		return delErr
	})
	return err
}
