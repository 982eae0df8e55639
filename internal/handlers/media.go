package handlers

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
	"helpmeout/internal/processor"
	"helpmeout/internal/recording"
	"helpmeout/internal/transcript"
)

// originalPath returns the merged recording. Videos still uploading are
// merged on demand from the chunks received so far.
func (h *Handlers) originalPath(w http.ResponseWriter, video *database.Video) (string, bool) {
	if video.Status != database.VideoStatusProcessing && video.OriginalLocation != "" {
		return video.OriginalLocation, true
	}

	path, err := h.store.Merge(video.ID)
	if err != nil {
		if errors.Is(err, recording.ErrNoChunks) {
			writeJSONError(w, "No blobs found.", http.StatusNotFound)
			return "", false
		}
		writeInternalError(w, "Failed to merge chunks", err)
		return "", false
	}
	return path, true
}

// serveFile streams path with Range support.
func serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSONError(w, "File not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to open file", err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Debug("failed to close %s: %v", path, closeErr)
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		writeInternalError(w, "Failed to stat file", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=0, must-revalidate")
	http.ServeContent(w, r, filepath.Base(path), stat.ModTime(), f)
}

// StreamVideo serves the original recording.
func (h *Handlers) StreamVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.readableVideo(w, r)
	if !ok {
		return
	}
	path, ok := h.originalPath(w, video)
	if !ok {
		return
	}
	w.Header().Set("Accept-Ranges", "bytes")
	serveFile(w, r, path, "video/mp4")
}

// DownloadVideo serves the original recording as an attachment named after
// the video's title.
func (h *Handlers) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.readableVideo(w, r)
	if !ok {
		return
	}
	path, ok := h.originalPath(w, video)
	if !ok {
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": video.Title + ".mp4"})
	if disposition == "" {
		disposition = mime.FormatMediaType("attachment", map[string]string{"filename": video.ID + ".mp4"})
	}
	w.Header().Set("Content-Disposition", disposition)
	serveFile(w, r, path, "video/mp4")
}

// GetTranscript serves the JSON or SRT transcript.
func (h *Handlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	video, ok := h.readableVideo(w, r)
	if !ok {
		return
	}

	format, err := transcript.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		writeJSONError(w, "Unsupported transcript format.", http.StatusBadRequest)
		return
	}

	if video.Status == database.VideoStatusProcessing || video.TranscriptLocation == "" {
		writeJSONError(w, "Video not processed yet.", http.StatusNotFound)
		return
	}

	path := video.TranscriptLocation
	if format == transcript.FormatSRT {
		path = processor.SRTPath(path)
	}
	serveFile(w, r, path, format.ContentType())
}

// GetThumbnail serves the thumbnail image.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	video, ok := h.readableVideo(w, r)
	if !ok {
		return
	}
	if video.Status == database.VideoStatusProcessing || video.ThumbnailLocation == "" {
		writeJSONError(w, "Video not processed yet.", http.StatusNotFound)
		return
	}
	serveFile(w, r, video.ThumbnailLocation, "image/jpeg")
}
