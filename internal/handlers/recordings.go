package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
	"helpmeout/internal/processor"
	"helpmeout/internal/recording"
)

// UploadBlobRequest carries one base64-encoded chunk of a recording.
type UploadBlobRequest struct {
	Username   string `json:"username"`
	VideoID    string `json:"video_id"`
	BlobIndex  int    `json:"blob_index"`
	IsLast     bool   `json:"is_last"`
	BlobObject string `json:"blob_object"`
}

// recordingOwner resolves who a new recording belongs to. A session wins.
// Without one, the username names a guest, created on first use; an empty
// username generates a fresh guest.
func (h *Handlers) recordingOwner(w http.ResponseWriter, r *http.Request) (*database.User, bool) {
	if user := currentUser(r); user != nil {
		return user, true
	}

	ctx := r.Context()
	username := queryParam(r, "username")
	if username == "" {
		user, err := h.db.CreateGuestUser(ctx, "")
		if err != nil {
			writeInternalError(w, "Failed to create guest user", err)
			return nil, false
		}
		return user, true
	}

	user, err := h.db.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if !user.IsGuest {
			writeJSONError(w, "Not authenticated.", http.StatusUnauthorized)
			return nil, false
		}
		return user, true
	case errors.Is(err, database.ErrNotFound):
		// Deleted accounts keep their name reserved.
		user, err = h.db.CreateGuestUser(ctx, username)
		if errors.Is(err, database.ErrInvalidUsername) {
			writeJSONError(w, usernameErrorDetail(err), http.StatusBadRequest)
			return nil, false
		}
		if errors.Is(err, database.ErrUsernameTaken) {
			writeJSONError(w, "Username already exists.", http.StatusConflict)
			return nil, false
		}
		if err != nil {
			writeInternalError(w, "Failed to create guest user", err)
			return nil, false
		}
		return user, true
	default:
		writeInternalError(w, "Failed to look up user", err)
		return nil, false
	}
}

// StartRecording allocates a video id for a new recording.
func (h *Handlers) StartRecording(w http.ResponseWriter, r *http.Request) {
	user, ok := h.recordingOwner(w, r)
	if !ok {
		return
	}

	video, err := h.db.CreateVideo(r.Context(), user.Username)
	if err != nil {
		writeInternalError(w, "Failed to create video", err)
		return
	}

	logging.Info("Recording %s started for %s", video.ID, user.Username)
	writeMessage(w, http.StatusOK, "Recording started successfully", map[string]interface{}{
		"video_id": video.ID,
		"username": user.Username,
	})
}

// UploadBlob stores one chunk. The chunk flagged is_last triggers the merge
// and background processing.
func (h *Handlers) UploadBlob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// base64 inflates by 4/3; leave room for the other fields.
	limit := h.store.MaxChunkBytes()*4/3 + 4096
	var req UploadBlobRequest
	if err := decodeJSON(w, r, limit, &req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, "Chunk too large.", http.StatusBadRequest)
			return
		}
		writeJSONError(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	user, err := h.db.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "User not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to look up user", err)
		return
	}
	if !user.IsGuest && !isOwner(r, user.Username) {
		writeJSONError(w, "Not authenticated.", http.StatusUnauthorized)
		return
	}

	video, err := h.db.GetVideo(ctx, req.VideoID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Video not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to look up video", err)
		return
	}
	if !equalUsernames(video.Username, user.Username) {
		writeJSONError(w, "Video does not belong to this user.", http.StatusForbidden)
		return
	}
	if video.Status != database.VideoStatusProcessing {
		writeJSONError(w, "Recording already processed.", http.StatusBadRequest)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.BlobObject)
	if err != nil {
		writeJSONError(w, "Invalid blob encoding.", http.StatusBadRequest)
		return
	}

	if _, err := h.store.SaveChunk(video.ID, req.BlobIndex, data); err != nil {
		switch {
		case errors.Is(err, recording.ErrInvalidIndex):
			writeJSONError(w, "Invalid blob index.", http.StatusBadRequest)
		case errors.Is(err, recording.ErrChunkTooLarge):
			writeJSONError(w, "Chunk too large.", http.StatusBadRequest)
		case errors.Is(err, recording.ErrInvalidPath):
			writeJSONError(w, "Invalid video id.", http.StatusBadRequest)
		default:
			writeInternalError(w, "Failed to store chunk", err)
		}
		return
	}

	if !req.IsLast {
		writeMessage(w, http.StatusOK, "Chunk received successfully!", map[string]interface{}{
			"video_id":   video.ID,
			"blob_index": req.BlobIndex,
		})
		return
	}

	path, err := h.store.Merge(video.ID)
	if err != nil {
		if errors.Is(err, recording.ErrNoChunks) {
			writeJSONError(w, "No blobs found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to merge chunks", err)
		return
	}

	if err := h.db.MarkVideoCompleted(ctx, video.ID, path); err != nil {
		writeInternalError(w, "Failed to record merged video", err)
		return
	}

	if err := h.processor.Submit(processor.Job{VideoID: video.ID, Username: video.Username, Input: path}); err != nil {
		if errors.Is(err, processor.ErrStopped) {
			writeJSONError(w, "Server is shutting down.", http.StatusServiceUnavailable)
			return
		}
		writeInternalError(w, "Failed to start processing", err)
		return
	}

	logging.Info("Recording %s uploaded by %s, processing started", video.ID, video.Username)
	writeMessage(w, http.StatusOK, "Blobs received successfully, video is being processed", map[string]interface{}{
		"video_id":  video.ID,
		"video_url": h.urlFor(r, routeStream, "video_id", video.ID),
	})
}
