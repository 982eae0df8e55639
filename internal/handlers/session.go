package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
)

// SessionCookieName is the name of the session cookie
const SessionCookieName = "helpmeout_session"

type contextKey int

const (
	userContextKey contextKey = iota
	tokenContextKey
)

// sessionToken returns the token from the session cookie or an
// Authorization bearer header, and whether it came from the cookie.
func sessionToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
			return strings.TrimSpace(token), false
		}
	}
	return "", false
}

// SessionMiddleware resolves the caller's session, if any, and stores the
// user in the request context. Requests without a valid session continue
// anonymously; handlers decide whether that is allowed. Valid sessions get
// a sliding expiration.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		user, err := h.db.ValidateSession(ctx, token)
		if err != nil {
			if !errors.Is(err, database.ErrInvalidSession) {
				logging.Error("Failed to validate session: %v", err)
			}
			if fromCookie {
				h.clearSessionCookie(w)
			}
			next.ServeHTTP(w, r)
			return
		}

		if err := h.db.ExtendSession(ctx, token, h.config.SessionDuration); err != nil {
			logging.Debug("Failed to extend session: %v", err)
		} else if fromCookie {
			h.setSessionCookie(w, token, time.Now().Add(h.config.SessionDuration))
		}

		ctx = context.WithValue(ctx, userContextKey, user)
		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the session user, or nil for anonymous requests.
func currentUser(r *http.Request) *database.User {
	user, _ := r.Context().Value(userContextKey).(*database.User)
	return user
}

// requireUser writes 401 and returns false when there is no session.
func requireUser(w http.ResponseWriter, r *http.Request) (*database.User, bool) {
	user := currentUser(r)
	if user == nil {
		writeJSONError(w, "Not authenticated.", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

// isOwner reports whether the session user owns username's resources.
func isOwner(r *http.Request, username string) bool {
	user := currentUser(r)
	return user != nil && strings.EqualFold(user.Username, username)
}

// startSession creates a session for user and sets the cookie.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user *database.User) (*database.Session, error) {
	session, err := h.db.CreateSession(r.Context(), user.ID, h.config.SessionDuration)
	if err != nil {
		return nil, err
	}
	h.setSessionCookie(w, session.Token, session.ExpiresAt)
	return session, nil
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
