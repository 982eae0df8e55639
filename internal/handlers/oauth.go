package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
	"helpmeout/internal/metrics"
	"helpmeout/internal/oauth"
)

// OAuthLogin redirects to the provider's consent page.
func (h *Handlers) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if h.sso == nil {
		writeJSONError(w, "Provider not configured.", http.StatusNotFound)
		return
	}

	loginURL, err := h.sso.LoginURL(provider)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			writeJSONError(w, "Provider not configured.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to build login URL", err)
		return
	}

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// OAuthCallback completes single sign-on. Returning users are matched by
// email; first-time users get an account named after their display name.
func (h *Handlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := mux.Vars(r)["provider"]
	if h.sso == nil {
		writeJSONError(w, "Provider not configured.", http.StatusNotFound)
		return
	}

	if providerErr := queryParam(r, "error"); providerErr != "" {
		metrics.AuthAttemptsTotal.WithLabelValues(provider, "failure").Inc()
		writeJSONError(w, "Authorization was denied: "+providerErr, http.StatusUnauthorized)
		return
	}

	profile, err := h.sso.Exchange(ctx, provider, queryParam(r, "state"), queryParam(r, "code"))
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues(provider, "failure").Inc()
		switch {
		case errors.Is(err, oauth.ErrUnknownProvider):
			writeJSONError(w, "Provider not configured.", http.StatusNotFound)
		case errors.Is(err, oauth.ErrInvalidState):
			writeJSONError(w, "Invalid OAuth state.", http.StatusBadRequest)
		default:
			logging.Warn("OAuth exchange with %s failed: %v", provider, err)
			writeJSONError(w, "Authentication with provider failed.", http.StatusUnauthorized)
		}
		return
	}

	user, err := h.db.GetUserByEmail(ctx, profile.Email)
	if errors.Is(err, database.ErrNotFound) {
		user, err = h.db.CreateOAuthUser(ctx, profile.Name, profile.Email)
		if err == nil {
			logging.Info("Created %s user %s", provider, user.Username)
		}
	}
	if err != nil {
		writeInternalError(w, "Failed to resolve OAuth user", err)
		return
	}

	if _, err := h.startSession(w, r, user); err != nil {
		writeInternalError(w, "Failed to create session", err)
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues(provider, "success").Inc()
	writeMessage(w, http.StatusOK, "User Logged in Successfully!", map[string]interface{}{"username": user.Username})
}
