package handlers

import (
	"net/http"

	"helpmeout/internal/startup"
)

// VersionResponse is the build information plus the optional features this
// instance has configured.
type VersionResponse struct {
	startup.BuildInfo
	Features map[string]bool `json:"features"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	features := map[string]bool{
		"transcription": h.config.TranscriptionEnabled(),
		"email":         h.mailer.Enabled(),
		"archive":       h.config.Archive.Bucket != "",
		"google":        h.config.Google.Enabled(),
		"facebook":      h.config.Facebook.Enabled(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		Features:  features,
	})
}
