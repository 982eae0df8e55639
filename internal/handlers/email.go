package handlers

import (
	"net/http"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
	"helpmeout/internal/mailer"
	"helpmeout/internal/transcript"
)

// SendVideoEmail emails links to a processed video. The recipient is read
// from "receipient", the parameter name existing clients send, or
// "recipient".
func (h *Handlers) SendVideoEmail(w http.ResponseWriter, r *http.Request) {
	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	recipient := queryParam(r, "receipient", "recipient")
	if recipient == "" {
		writeJSONError(w, "Recipient email is required.", http.StatusBadRequest)
		return
	}

	if video.Status == database.VideoStatusProcessing {
		writeJSONError(w, "Video not processed yet.", http.StatusNotFound)
		return
	}

	if !h.mailer.Enabled() {
		writeJSONError(w, "Email delivery is not configured.", http.StatusServiceUnavailable)
		return
	}

	msg := mailer.VideoEmail{
		Title:       video.Title,
		Sender:      video.Username,
		StreamURL:   h.urlFor(r, routeStream, "video_id", video.ID),
		DownloadURL: h.urlFor(r, routeDownload, "video_id", video.ID),
	}
	if video.ThumbnailLocation != "" {
		msg.ThumbnailURL = h.urlFor(r, routeThumbnail, "video_id", video.ID)
	}
	if video.TranscriptLocation != "" {
		msg.TranscriptURL = h.urlFor(r, routeTranscript, "video_id", video.ID, "format", string(transcript.FormatSRT))
	}

	if err := h.mailer.SendVideo(r.Context(), recipient, msg); err != nil {
		logging.Error("Failed to email video %s to %s: %v", video.ID, recipient, err)
		writeJSONError(w, "Email not sent!", http.StatusInternalServerError)
		return
	}

	writeMessage(w, http.StatusOK, "Email sent successfully!", map[string]interface{}{
		"video_id":  video.ID,
		"recipient": recipient,
	})
}
