package database

import (
	"errors"
	"time"
)

// Sentinel errors returned by the query helpers. Callers test them with
// errors.Is and map them to HTTP status codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	ErrInvalidOTP         = errors.New("invalid or expired passcode")
	ErrInvalidUsername    = errors.New("invalid username")
)

// VideoStatus is the processing lifecycle state of a recording.
type VideoStatus string

const (
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// OTPPurpose scopes a one-time passcode to a single flow.
type OTPPurpose string

const (
	OTPPurposeSignup        OTPPurpose = "signup"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// User is an account. Guest users are created implicitly when a recording is
// started without a session and cannot log in.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsGuest      bool      `json:"is_guest"`
	IsDeleted    bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session represents an authenticated user session.
type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Video is a recording and the locations of its derived artifacts.
// Location fields hold filesystem paths; handlers rewrite them to URLs
// before returning a Video to clients.
type Video struct {
	ID                 string      `json:"id"`
	Username           string      `json:"username"`
	Title              string      `json:"title"`
	CreatedAt          time.Time   `json:"created_at"`
	Status             VideoStatus `json:"status"`
	OriginalLocation   string      `json:"original_location,omitempty"`
	CompressedLocation string      `json:"compressed_location,omitempty"`
	ThumbnailLocation  string      `json:"thumbnail_location,omitempty"`
	TranscriptLocation string      `json:"transcript_location,omitempty"`
	AudioLocation      string      `json:"-"`
	VideoLength        float64     `json:"video_length,omitempty"`
	IsPublic           bool        `json:"is_public"`
	PublicExpiry       *time.Time  `json:"public_expiry,omitempty"`
	ErrorMessage       string      `json:"error_message,omitempty"`
}

// PublicAccessExpired reports whether the video is public with an expiry at
// or before now.
func (v *Video) PublicAccessExpired(now time.Time) bool {
	return v.IsPublic && v.PublicExpiry != nil && !now.Before(*v.PublicExpiry)
}

// Artifacts are the outputs of post-upload processing.
type Artifacts struct {
	CompressedLocation string
	ThumbnailLocation  string
	TranscriptLocation string
	AudioLocation      string
	VideoLength        float64
}
