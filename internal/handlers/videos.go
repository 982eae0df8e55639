package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
	"helpmeout/internal/processor"
	"helpmeout/internal/transcript"
)

func equalUsernames(a, b string) bool {
	return strings.EqualFold(a, b)
}

// lookupVideo loads the video named in the route, writing 404 if missing.
func (h *Handlers) lookupVideo(w http.ResponseWriter, r *http.Request) (*database.Video, bool) {
	video, err := h.db.GetVideo(r.Context(), mux.Vars(r)["video_id"])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Video not found.", http.StatusNotFound)
			return nil, false
		}
		writeInternalError(w, "Failed to look up video", err)
		return nil, false
	}
	return video, true
}

// readableVideo loads a video for a read endpoint. Expired public access is
// revoked before the privacy check; private videos are visible only to
// their owner.
func (h *Handlers) readableVideo(w http.ResponseWriter, r *http.Request) (*database.Video, bool) {
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return nil, false
	}

	now := time.Now()
	if video.PublicAccessExpired(now) {
		if _, err := h.db.ExpirePublicAccess(r.Context(), video.ID, now); err != nil {
			writeInternalError(w, "Failed to expire public access", err)
			return nil, false
		}
		logging.Debug("Public access to video %s expired", video.ID)
		video.IsPublic = false
		video.PublicExpiry = nil
	}

	if !video.IsPublic && !isOwner(r, video.Username) {
		writeJSONError(w, "Access denied: Private video or expired public access.", http.StatusForbidden)
		return nil, false
	}
	return video, true
}

// ownedVideo loads a video that the session user must own.
func (h *Handlers) ownedVideo(w http.ResponseWriter, r *http.Request) (*database.Video, bool) {
	if _, ok := requireUser(w, r); !ok {
		return nil, false
	}
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return nil, false
	}
	if !isOwner(r, video.Username) {
		writeJSONError(w, "You do not have permission to modify this video.", http.StatusForbidden)
		return nil, false
	}
	return video, true
}

// presentVideo replaces filesystem paths with the URLs that serve them.
// The compressed copy has no route of its own and is hidden.
func (h *Handlers) presentVideo(r *http.Request, v database.Video) database.Video {
	if v.OriginalLocation != "" || v.Status == database.VideoStatusProcessing {
		v.OriginalLocation = h.urlFor(r, routeStream, "video_id", v.ID)
	}
	v.CompressedLocation = ""
	if v.ThumbnailLocation != "" {
		v.ThumbnailLocation = h.urlFor(r, routeThumbnail, "video_id", v.ID)
	}
	if v.TranscriptLocation != "" {
		v.TranscriptLocation = h.urlFor(r, routeTranscript, "video_id", v.ID, "format", string(transcript.FormatJSON))
	}
	return v
}

// ListUserVideos lists the session user's own recordings.
func (h *Handlers) ListUserVideos(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	username := mux.Vars(r)["username"]
	if !isOwner(r, username) {
		writeJSONError(w, "You can only list your own videos.", http.StatusForbidden)
		return
	}

	videos, err := h.db.ListVideosByUser(r.Context(), username)
	if err != nil {
		writeInternalError(w, "Failed to list videos", err)
		return
	}
	if len(videos) == 0 {
		writeJSONError(w, "User Videos not found.", http.StatusNotFound)
		return
	}

	presented := make([]database.Video, 0, len(videos))
	for _, v := range videos {
		presented = append(presented, h.presentVideo(r, v))
	}

	writeMessage(w, http.StatusOK, "Videos retrieved successfully", map[string]interface{}{
		"username": username,
		"videos":   presented,
	})
}

// GetVideo returns a single video's metadata.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.readableVideo(w, r)
	if !ok {
		return
	}
	writeMessage(w, http.StatusOK, "Video retrieved successfully", map[string]interface{}{
		"video": h.presentVideo(r, *video),
	})
}

// UpdateVideoTitle renames a video.
func (h *Handlers) UpdateVideoTitle(w http.ResponseWriter, r *http.Request) {
	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	title := queryParam(r, "title")
	if title == "" {
		writeJSONError(w, "Title is required.", http.StatusBadRequest)
		return
	}

	if err := h.db.UpdateVideoTitle(r.Context(), video.ID, title); err != nil {
		writeInternalError(w, "Failed to update title", err)
		return
	}
	writeMessage(w, http.StatusOK, "Title updated successfully!", map[string]interface{}{
		"video_id": video.ID,
		"title":    title,
	})
}

// UpdateVisibility makes a video public or private. Public access may be
// limited with expires_in, a duration such as "24h".
func (h *Handlers) UpdateVisibility(w http.ResponseWriter, r *http.Request) {
	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	public, err := strconv.ParseBool(queryParam(r, "is_public"))
	if err != nil {
		writeJSONError(w, "is_public must be true or false.", http.StatusBadRequest)
		return
	}

	var expiry *time.Time
	if raw := queryParam(r, "expires_in"); raw != "" && public {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			writeJSONError(w, "expires_in must be a positive duration such as 24h.", http.StatusBadRequest)
			return
		}
		t := time.Now().Add(ttl)
		expiry = &t
	}

	if err := h.db.SetVideoVisibility(r.Context(), video.ID, public, expiry); err != nil {
		writeInternalError(w, "Failed to update visibility", err)
		return
	}

	extra := map[string]interface{}{
		"video_id":  video.ID,
		"is_public": public,
	}
	if expiry != nil {
		extra["public_expiry"] = expiry.UTC().Format(time.RFC3339)
	}
	writeMessage(w, http.StatusOK, "Visibility updated successfully!", extra)
}

// TransferVideos moves a guest's recordings to the session user, who must
// be username2.
func (h *Handlers) TransferVideos(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	from := queryParam(r, "username1")
	to := queryParam(r, "username2")
	if from == "" || to == "" {
		writeJSONError(w, "username1 and username2 are required.", http.StatusBadRequest)
		return
	}
	if !isOwner(r, to) {
		writeJSONError(w, "You can only transfer videos to your own account.", http.StatusForbidden)
		return
	}

	guest, err := h.db.GetUserByUsername(r.Context(), from)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "User not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to look up user", err)
		return
	}
	if !guest.IsGuest {
		writeJSONError(w, "Only guest recordings can be transferred.", http.StatusForbidden)
		return
	}

	moved, err := h.db.TransferVideos(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "User not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to transfer videos", err)
		return
	}

	logging.Info("Transferred %d videos from %s to %s", moved, guest.Username, to)
	writeMessage(w, http.StatusOK, "Videos transferred successfully!", map[string]interface{}{
		"count": moved,
	})
}

// DeleteVideo removes a video's row and then, best-effort, its files. A
// failed file removal leaves orphans on disk rather than a row whose media
// is gone.
func (h *Handlers) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteVideo(r.Context(), video.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Video not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to delete video", err)
		return
	}

	if err := processor.RemoveArtifacts(video); err != nil {
		logging.Warn("Failed to remove artifacts of video %s: %v", video.ID, err)
	}
	if video.OriginalLocation != "" {
		if err := h.store.RemoveFile(video.OriginalLocation); err != nil {
			logging.Warn("Failed to remove video %s: %v", video.ID, err)
		}
	}
	if err := h.store.RemoveAll(video.ID); err != nil {
		logging.Warn("Failed to remove upload directory of video %s: %v", video.ID, err)
	}

	logging.Info("Video %s deleted by %s", video.ID, video.Username)
	writeMessage(w, http.StatusOK, "Video deleted successfully!", map[string]interface{}{"video_id": video.ID})
}
