package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"helpmeout/internal/logging"
)

// APIPrefix is the mount point of every API route.
const APIPrefix = "/srce/api"

const videoIDPattern = "{video_id:[A-Za-z0-9_-]+}"

// Route names used to build absolute URLs.
const (
	routeStream     = "stream_video"
	routeDownload   = "download_video"
	routeTranscript = "get_transcript"
	routeThumbnail  = "get_thumbnail"
)

// Router builds the application router. Probe and version endpoints are
// registered at the root, everything else under APIPrefix behind
// SessionMiddleware.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.StrictSlash(false)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(h.SessionMiddleware)

	api.HandleFunc("/", h.Home).Methods(http.MethodGet)

	// Authentication
	api.HandleFunc("/get_signup_otp/", h.GetSignupOTP).Methods(http.MethodPost)
	api.HandleFunc("/signup/", h.Signup).Methods(http.MethodPost)
	api.HandleFunc("/login/", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/logout/", h.Logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/check/", h.CheckAuth).Methods(http.MethodGet)
	api.HandleFunc("/request_otp/", h.RequestOTP).Methods(http.MethodPost)
	api.HandleFunc("/change_password/", h.ChangePassword).Methods(http.MethodPost)
	api.HandleFunc("/username/{username}/", h.EditUsername).Methods(http.MethodPut)
	api.HandleFunc("/account/", h.DeleteAccount).Methods(http.MethodDelete)
	api.HandleFunc("/{provider:google|facebook}/login/", h.OAuthLogin).Methods(http.MethodGet)
	api.HandleFunc("/{provider:google|facebook}/callback/", h.OAuthCallback).Methods(http.MethodGet)

	// Recording
	api.HandleFunc("/start-recording/", h.StartRecording).Methods(http.MethodPost)
	api.HandleFunc("/upload-blob/", h.UploadBlob).Methods(http.MethodPost)

	// Videos
	api.HandleFunc("/recording/user/{username}", h.ListUserVideos).Methods(http.MethodGet)
	api.HandleFunc("/recording/"+videoIDPattern, h.GetVideo).Methods(http.MethodGet)
	api.HandleFunc("/video/"+videoIDPattern+".mp4", h.StreamVideo).Methods(http.MethodGet, http.MethodHead).Name(routeStream)
	api.HandleFunc("/download/"+videoIDPattern, h.DownloadVideo).Methods(http.MethodGet).Name(routeDownload)
	api.HandleFunc("/transcript/"+videoIDPattern+".{format:[a-z]+}", h.GetTranscript).Methods(http.MethodGet).Name(routeTranscript)
	api.HandleFunc("/thumbnail/"+videoIDPattern+".jpeg", h.GetThumbnail).Methods(http.MethodGet).Name(routeThumbnail)
	api.HandleFunc("/video/"+videoIDPattern, h.UpdateVideoTitle).Methods(http.MethodPatch)
	api.HandleFunc("/video/"+videoIDPattern+"/visibility", h.UpdateVisibility).Methods(http.MethodPatch)
	api.HandleFunc("/videos/transfer/", h.TransferVideos).Methods(http.MethodPatch)
	api.HandleFunc("/video/"+videoIDPattern, h.DeleteVideo).Methods(http.MethodDelete)
	api.HandleFunc("/send-email/"+videoIDPattern, h.SendVideoEmail).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "Not Found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	})

	h.router = r
	return r
}

// urlFor returns the absolute URL of a named route. The configured base URL
// wins; otherwise the request's own scheme and host are used.
func (h *Handlers) urlFor(r *http.Request, name string, pairs ...string) string {
	route := h.router.Get(name)
	if route == nil {
		logging.Error("unknown route %q", name)
		return ""
	}
	u, err := route.URL(pairs...)
	if err != nil {
		logging.Error("failed to build URL for %s: %v", name, err)
		return ""
	}
	return h.baseURL(r) + u.Path
}

func (h *Handlers) baseURL(r *http.Request) string {
	if h.config.BaseURL != "" {
		return strings.TrimRight(h.config.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
