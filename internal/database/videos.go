package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mattn/go-sqlite3"
)

const (
	videoIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	videoIDLength   = 15
)

const videoColumns = `id, username, title, created_at, status,
	COALESCE(original_location, ''), COALESCE(compressed_location, ''),
	COALESCE(thumbnail_location, ''), COALESCE(transcript_location, ''),
	COALESCE(audio_location, ''), COALESCE(video_length, 0),
	is_public, public_expiry, COALESCE(error_message, '')`

// NewVideoID returns a random 15 character alphanumeric video id.
func NewVideoID() (string, error) {
	return gonanoid.Generate(videoIDAlphabet, videoIDLength)
}

// DefaultVideoTitle is the title given to new recordings.
func DefaultVideoTitle(id string) string {
	return "Untitled Video " + id
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	var createdAt int64
	var status string
	var isPublic int
	var expiry sql.NullInt64

	err := row.Scan(&v.ID, &v.Username, &v.Title, &createdAt, &status,
		&v.OriginalLocation, &v.CompressedLocation, &v.ThumbnailLocation,
		&v.TranscriptLocation, &v.AudioLocation, &v.VideoLength,
		&isPublic, &expiry, &v.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	v.CreatedAt = time.Unix(createdAt, 0)
	v.Status = VideoStatus(status)
	v.IsPublic = isPublic != 0
	if expiry.Valid {
		t := time.Unix(expiry.Int64, 0)
		v.PublicExpiry = &t
	}
	return &v, nil
}

func queryVideos(ctx context.Context, q querier, where string, args ...any) ([]Video, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+videoColumns+" FROM videos "+where+" ORDER BY created_at DESC, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// CreateVideo inserts a new recording in the processing state for username.
// Returns ErrNotFound when the user does not exist.
func (d *Database) CreateVideo(ctx context.Context, username string) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_video", start, err) }()

	id, err := NewVideoID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate video id: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now()
	video := &Video{
		ID:        id,
		Username:  NormalizeUsername(username),
		Title:     DefaultVideoTitle(id),
		CreatedAt: time.Unix(now.Unix(), 0),
		Status:    VideoStatusProcessing,
		IsPublic:  true,
	}

	_, err = d.db.ExecContext(ctx,
		"INSERT INTO videos (id, username, title, created_at, status, is_public) VALUES (?, ?, ?, ?, ?, 1)",
		video.ID, video.Username, video.Title, now.Unix(), string(video.Status),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			err = ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to create video: %w", err)
	}

	return video, nil
}

// GetVideo retrieves a single video by id.
func (d *Database) GetVideo(ctx context.Context, id string) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_video", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	video, err := scanVideo(d.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE id = ?", id))
	return video, err
}

// ListVideosByUser returns a user's videos, newest first.
func (d *Database) ListVideosByUser(ctx context.Context, username string) ([]Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_videos", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	videos, err := queryVideos(ctx, d.db, "WHERE username = ?", NormalizeUsername(username))
	return videos, err
}

// updateVideo runs a single-row UPDATE and maps "no rows" to ErrNotFound.
func (d *Database) updateVideo(ctx context.Context, op, query string, args ...any) error {
	start := time.Now()
	var err error
	defer func() { recordQuery(op, start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = ErrNotFound
	}
	return err
}

// MarkVideoCompleted records the merged original file and flips the status
// to completed.
func (d *Database) MarkVideoCompleted(ctx context.Context, id, originalLocation string) error {
	return d.updateVideo(ctx, "update_video",
		"UPDATE videos SET original_location = ?, status = ?, error_message = NULL WHERE id = ?",
		originalLocation, string(VideoStatusCompleted), id,
	)
}

// SaveArtifacts records the outputs of post-upload processing.
func (d *Database) SaveArtifacts(ctx context.Context, id string, a Artifacts) error {
	return d.updateVideo(ctx, "update_video", `
		UPDATE videos SET
			compressed_location = ?,
			thumbnail_location = ?,
			transcript_location = ?,
			audio_location = ?,
			video_length = ?
		WHERE id = ?`,
		nullString(a.CompressedLocation), nullString(a.ThumbnailLocation),
		nullString(a.TranscriptLocation), nullString(a.AudioLocation),
		a.VideoLength, id,
	)
}

// MarkVideoFailed flips a video to failed and records why.
func (d *Database) MarkVideoFailed(ctx context.Context, id, reason string) error {
	return d.updateVideo(ctx, "update_video",
		"UPDATE videos SET status = ?, error_message = ? WHERE id = ?",
		string(VideoStatusFailed), reason, id,
	)
}

// UpdateVideoTitle renames a video.
func (d *Database) UpdateVideoTitle(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	return d.updateVideo(ctx, "update_video", "UPDATE videos SET title = ? WHERE id = ?", title, id)
}

// SetVideoVisibility sets the public flag. expiry, when non-nil and the
// video is public, is the instant public access ends.
func (d *Database) SetVideoVisibility(ctx context.Context, id string, public bool, expiry *time.Time) error {
	var expiryValue sql.NullInt64
	if public && expiry != nil {
		expiryValue = sql.NullInt64{Int64: expiry.Unix(), Valid: true}
	}
	return d.updateVideo(ctx, "update_video",
		"UPDATE videos SET is_public = ?, public_expiry = ? WHERE id = ?",
		boolToInt(public), expiryValue, id,
	)
}

// ExpirePublicAccess makes the video private if its public access expired
// at or before now. It reports whether the video was changed.
func (d *Database) ExpirePublicAccess(ctx context.Context, id string, now time.Time) (bool, error) {
	err := d.updateVideo(ctx, "update_video", `
		UPDATE videos SET is_public = 0, public_expiry = NULL
		WHERE id = ? AND is_public = 1 AND public_expiry IS NOT NULL AND public_expiry <= ?`,
		id, now.Unix(),
	)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// TransferVideos moves every video owned by from to to and returns the
// number moved. Both users must exist.
func (d *Database) TransferVideos(ctx context.Context, from, to string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("transfer_videos", start, err) }()

	from = NormalizeUsername(from)
	to = NormalizeUsername(to)

	var moved int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		for _, name := range []string{from, to} {
			var exists bool
			if txErr := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) > 0 FROM users WHERE username = ? AND is_deleted = 0", name,
			).Scan(&exists); txErr != nil {
				return txErr
			}
			if !exists {
				return ErrNotFound
			}
		}

		// Store the recipient's canonical spelling so the FK matches exactly.
		var canonical string
		if txErr := tx.QueryRowContext(ctx,
			"SELECT username FROM users WHERE username = ?", to,
		).Scan(&canonical); txErr != nil {
			return txErr
		}

		result, txErr := tx.ExecContext(ctx,
			"UPDATE videos SET username = ? WHERE username = ?", canonical, from,
		)
		if txErr != nil {
			return fmt.Errorf("failed to transfer videos: %w", txErr)
		}
		moved, _ = result.RowsAffected()
		return nil
	})
	return moved, err
}

// DeleteVideo removes a video row.
func (d *Database) DeleteVideo(ctx context.Context, id string) error {
	return d.updateVideo(ctx, "delete_video", "DELETE FROM videos WHERE id = ?", id)
}
