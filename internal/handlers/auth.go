package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
	"helpmeout/internal/mailer"
	"helpmeout/internal/metrics"
)

// OTPRequest asks for a signup passcode.
type OTPRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SignupRequest registers a new account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// LoginRequest represents a username/password login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest resets a password with an emailed passcode.
type ChangePasswordRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// GetSignupOTP emails a signup passcode after checking the username is free.
func (h *Handlers) GetSignupOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OTPRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		writeJSONError(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	username := database.NormalizeUsername(req.Username)
	if username == "" || strings.TrimSpace(req.Email) == "" {
		writeJSONError(w, "Username and email are required.", http.StatusBadRequest)
		return
	}
	if err := database.ValidateUsername(username); err != nil {
		writeJSONError(w, usernameErrorDetail(err), http.StatusBadRequest)
		return
	}

	exists, err := h.db.UsernameExists(ctx, username)
	if err != nil {
		writeInternalError(w, "Failed to check username", err)
		return
	}
	if exists {
		writeJSONError(w, "Username already exists.", http.StatusConflict)
		return
	}

	if !h.mailer.Enabled() {
		writeJSONError(w, "Email delivery is not configured.", http.StatusServiceUnavailable)
		return
	}

	code, err := h.db.IssueOTP(ctx, database.OTPPurposeSignup, username, h.config.OTPTTL)
	if err != nil {
		writeInternalError(w, "Failed to issue passcode", err)
		return
	}
	metrics.OTPIssuedTotal.WithLabelValues(string(database.OTPPurposeSignup)).Inc()

	if err := h.mailer.SendOTP(ctx, req.Email, username, code, mailer.OTPSignup, h.config.OTPTTL); err != nil {
		writeInternalError(w, "Failed to send signup passcode", err)
		return
	}

	writeMessage(w, http.StatusOK, "OTP sent successfully", map[string]interface{}{"username": username})
}

// Signup registers a new user. A signup passcode is required when
// REQUIRE_SIGNUP_OTP is on.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignupRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		writeJSONError(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	username := database.NormalizeUsername(req.Username)
	if username == "" {
		writeJSONError(w, "Username is required.", http.StatusBadRequest)
		return
	}
	if err := database.ValidateUsername(username); err != nil {
		writeJSONError(w, usernameErrorDetail(err), http.StatusBadRequest)
		return
	}
	if err := database.ValidatePassword(req.Password); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	exists, err := h.db.UsernameExists(ctx, username)
	if err != nil {
		writeInternalError(w, "Failed to check username", err)
		return
	}
	if exists {
		writeJSONError(w, "Username already exists.", http.StatusConflict)
		return
	}

	if h.config.RequireSignupOTP {
		if err := h.db.ConsumeOTP(ctx, database.OTPPurposeSignup, username, strings.TrimSpace(req.OTP)); err != nil {
			if errors.Is(err, database.ErrInvalidOTP) {
				writeJSONError(w, "Invalid or expired OTP.", http.StatusUnauthorized)
				return
			}
			writeInternalError(w, "Failed to verify passcode", err)
			return
		}
	}

	user, err := h.db.CreateUser(ctx, username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			writeJSONError(w, "Username already exists.", http.StatusConflict)
			return
		}
		writeInternalError(w, "Failed to create user", err)
		return
	}

	logging.Info("User registered: %s", user.Username)
	writeMessage(w, http.StatusCreated, "User registered successfully", map[string]interface{}{"username": user.Username})
}

// Login authenticates with username and password and starts a session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		writeJSONError(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	user, err := h.db.AuthenticateUser(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, database.ErrNotFound):
		metrics.AuthAttemptsTotal.WithLabelValues("password", "failure").Inc()
		writeJSONError(w, "Invalid Username", http.StatusNotFound)
		return
	case errors.Is(err, database.ErrInvalidCredentials):
		logging.Warn("Failed login attempt for %s", database.NormalizeUsername(req.Username))
		metrics.AuthAttemptsTotal.WithLabelValues("password", "failure").Inc()
		writeJSONError(w, "Invalid Password.", http.StatusUnauthorized)
		return
	case err != nil:
		writeInternalError(w, "Failed to authenticate user", err)
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("password", "success").Inc()

	session, err := h.startSession(w, r, user)
	if err != nil {
		writeInternalError(w, "Failed to create session", err)
		return
	}

	writeMessage(w, http.StatusOK, "Login Successful", map[string]interface{}{
		"username":   user.Username,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Logout ends the current session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token, _ := r.Context().Value(tokenContextKey).(string); token != "" {
		// Best-effort session cleanup - don't fail logout if this errors
		if err := h.db.DeleteSession(r.Context(), token); err != nil {
			logging.Error("failed to delete session during logout: %v", err)
		}
	}

	h.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logged out successfully", nil)
}

// CheckAuth reports the session user.
func (h *Handlers) CheckAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeMessage(w, http.StatusOK, "Authenticated", map[string]interface{}{
		"username": user.Username,
		"is_guest": user.IsGuest,
	})
}

// RequestOTP emails a password reset passcode to the user's address.
func (h *Handlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := queryParam(r, "username")
	if username == "" {
		writeJSONError(w, "Username is required.", http.StatusBadRequest)
		return
	}

	user, err := h.db.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "User not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to look up user", err)
		return
	}
	if user.Email == "" {
		writeJSONError(w, "No email address on file for this user.", http.StatusBadRequest)
		return
	}
	if !h.mailer.Enabled() {
		writeJSONError(w, "Email delivery is not configured.", http.StatusServiceUnavailable)
		return
	}

	code, err := h.db.IssueOTP(ctx, database.OTPPurposePasswordReset, user.Username, h.config.OTPTTL)
	if err != nil {
		writeInternalError(w, "Failed to issue passcode", err)
		return
	}
	metrics.OTPIssuedTotal.WithLabelValues(string(database.OTPPurposePasswordReset)).Inc()

	if err := h.mailer.SendOTP(ctx, user.Email, user.Username, code, mailer.OTPPasswordReset, h.config.OTPTTL); err != nil {
		writeInternalError(w, "Failed to send password reset passcode", err)
		return
	}

	writeMessage(w, http.StatusOK, "OTP sent successfully", map[string]interface{}{"username": user.Username})
}

// ChangePassword sets a new password after verifying a reset passcode.
// Every session of the user is invalidated.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
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

	if err := database.ValidatePassword(req.Password); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.ConsumeOTP(ctx, database.OTPPurposePasswordReset, user.Username, strings.TrimSpace(req.OTP)); err != nil {
		if errors.Is(err, database.ErrInvalidOTP) {
			writeJSONError(w, "Invalid or expired OTP.", http.StatusUnauthorized)
			return
		}
		writeInternalError(w, "Failed to verify passcode", err)
		return
	}

	if err := h.db.SetPassword(ctx, user.ID, req.Password); err != nil {
		writeInternalError(w, "Failed to update password", err)
		return
	}

	logging.Info("Password changed for %s", user.Username)
	writeMessage(w, http.StatusOK, "Password changed successfully", map[string]interface{}{"username": user.Username})
}

// EditUsername renames the session user. Their videos follow.
func (h *Handlers) EditUsername(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	username := mux.Vars(r)["username"]
	if !strings.EqualFold(user.Username, username) {
		writeJSONError(w, "You can only change your own username.", http.StatusForbidden)
		return
	}

	newUsername := queryParam(r, "new_username")
	if newUsername == "" {
		writeJSONError(w, "New username is required.", http.StatusBadRequest)
		return
	}

	updated, err := h.db.RenameUser(r.Context(), username, newUsername)
	switch {
	case errors.Is(err, database.ErrInvalidUsername):
		writeJSONError(w, usernameErrorDetail(err), http.StatusBadRequest)
		return
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, "User not found.", http.StatusNotFound)
		return
	case errors.Is(err, database.ErrUsernameTaken):
		writeJSONError(w, "Username already exists.", http.StatusConflict)
		return
	case err != nil:
		writeInternalError(w, "Failed to rename user", err)
		return
	}

	logging.Info("User %s renamed to %s", username, updated.Username)
	writeMessage(w, http.StatusOK, "username updated successfully", map[string]interface{}{"username": updated.Username})
}

// usernameErrorDetail turns a database.ErrInvalidUsername into a sentence
// for the client.
func usernameErrorDetail(err error) string {
	detail := strings.TrimPrefix(err.Error(), database.ErrInvalidUsername.Error()+": ")
	if detail == "" {
		return "Invalid username."
	}
	return strings.ToUpper(detail[:1]) + detail[1:] + "."
}

// DeleteAccount soft-deletes the session user and logs them out.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.db.SoftDeleteUser(r.Context(), user.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "User not found.", http.StatusNotFound)
			return
		}
		writeInternalError(w, "Failed to delete account", err)
		return
	}

	h.clearSessionCookie(w)
	logging.Info("Account deleted: %s", user.Username)
	writeMessage(w, http.StatusOK, "Account deleted successfully", nil)
}
