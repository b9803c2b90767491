package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mto-maintenance/apiserver/internal/metrics"
	"github.com/mto-maintenance/apiserver/internal/services"
	"github.com/mto-maintenance/apiserver/types"
)

// AuthHandler provides session authentication endpoints.
type AuthHandler struct {
	users        *services.UserService
	sessions     *services.SessionService
	auth         *Authenticator
	cookieName   string
	secureCookie bool
	errors       Errors
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	users *services.UserService,
	sessions *services.SessionService,
	auth *Authenticator,
	cookieName string,
	secureCookie bool,
	errs Errors,
) *AuthHandler {
	return &AuthHandler{
		users:        users,
		sessions:     sessions,
		auth:         auth,
		cookieName:   cookieName,
		secureCookie: secureCookie,
		errors:       errs,
	}
}

// AuthRouter registers auth routes on the given router. limit, if not nil,
// guards the credential endpoints.
func AuthRouter(r chi.Router, h *AuthHandler, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})
	r.Get("/validate", h.Validate)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Post("/logout", h.Logout)
		r.Post("/logout-all", h.LogoutAll)
		r.Get("/profile", h.Profile)
		r.Get("/sessions", h.Sessions)
		r.Delete("/sessions/{sessionID}", h.RevokeSession)
		r.Put("/password", h.ChangePassword)
	})
}

type RegisterRequest struct {
	Username      string `json:"username" validate:"min=3"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"min=6"`
	FirstName     string `json:"firstName" validate:"required"`
	LastName      string `json:"lastName" validate:"required"`
	Rank          string `json:"rank" validate:"required"`
	ServiceNumber string `json:"serviceNumber" validate:"required"`
	Role          string `json:"role" validate:"required,role"`
	Unit          string `json:"unit" validate:"required"`
	Location      string `json:"location" validate:"required"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
}

func (req *RegisterRequest) normalize() {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Rank = strings.TrimSpace(req.Rank)
	req.ServiceNumber = strings.TrimSpace(req.ServiceNumber)
	req.Unit = strings.TrimSpace(req.Unit)
	req.Location = strings.TrimSpace(req.Location)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"min=6"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	Response
	SessionID string           `json:"sessionId"`
	User      types.PublicUser `json:"user"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type ValidateResponse struct {
	Response
	User types.Principal `json:"user"`
}

type ProfileResponse struct {
	Response
	User types.User `json:"user"`
}

type SessionsResponse struct {
	Response
	Sessions []types.SessionSummary `json:"sessions"`
}

// Register creates a new user account and opens its first session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.normalize()
	if errs := validateRequest(req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}

	user, err := h.users.Register(r.Context(), types.User{
		Username:      req.Username,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Rank:          req.Rank,
		ServiceNumber: req.ServiceNumber,
		Role:          req.Role,
		Unit:          req.Unit,
		Location:      req.Location,
		PhoneNumber:   req.PhoneNumber,
	}, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserExists) {
			writeError(w, http.StatusBadRequest, "User with this email, username, or service number already exists")
			return
		}
		h.errors.internal(w, r, "Registration failed", err)
		return
	}

	h.openSession(w, r, user.ID, http.StatusCreated, "User registered successfully")
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if errs := validateRequest(req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			metrics.ObserveLogin(metrics.ResultInvalidCredentials)
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		metrics.ObserveLogin(metrics.ResultError)
		h.errors.internal(w, r, "Login failed", err)
		return
	}

	metrics.ObserveLogin(metrics.ResultSuccess)
	h.openSession(w, r, user.ID, http.StatusOK, "Login successful")
}

func (h *AuthHandler) openSession(w http.ResponseWriter, r *http.Request, userID int, status int, message string) {
	device := services.ClassifyDevice(r.UserAgent(), clientIP(r))
	grant, err := h.sessions.CreateSession(r.Context(), userID, device)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.errors.internal(w, r, "Failed to create session", err)
		return
	}

	h.setCookie(w, grant.Token, grant.ExpiresAt)
	writeJSON(w, status, SessionResponse{
		Response:  success(message),
		SessionID: grant.Token,
		User:      grant.Principal.PublicUser,
		ExpiresAt: grant.ExpiresAt,
	})
}

// Logout invalidates the session the request was made with.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.InvalidateSession(r.Context(), tokenFromContext(r.Context())); err != nil {
		h.errors.internal(w, r, "Logout failed", err)
		return
	}
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		h.sessions.NotifyInvalidated(r.Context(), principal)
	}

	h.clearCookie(w)
	writeJSON(w, http.StatusOK, success("Logout successful"))
}

// LogoutAll invalidates every session of the caller.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if _, err := h.sessions.InvalidateAllSessions(r.Context(), principal.ID); err != nil {
		h.errors.internal(w, r, "Logout from all devices failed", err)
		return
	}

	h.clearCookie(w)
	writeJSON(w, http.StatusOK, success("Logged out from all devices successfully"))
}

// Validate reports whether the presented token is valid without requiring
// it; invalid sessions answer 401.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	h.auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		writeJSON(w, http.StatusOK, ValidateResponse{Response: success("Session valid"), User: principal})
	})).ServeHTTP(w, r)
}

// Profile returns the caller's full public record.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	user, err := h.users.GetByID(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.errors.internal(w, r, "Failed to get user profile", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Response: success("Profile loaded"), User: user})
}

// Sessions lists the caller's valid sessions and flags the current one.
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	sessions, err := h.sessions.GetUserSessions(r.Context(), principal.ID)
	if err != nil {
		h.errors.internal(w, r, "Failed to get sessions", err)
		return
	}
	for i := range sessions {
		sessions[i].Current = sessions[i].ID == principal.SessionID
	}

	writeJSON(w, http.StatusOK, SessionsResponse{Response: success("Active sessions"), Sessions: sessions})
}

// RevokeSession ends one of the caller's own sessions by id.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseIDParam(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	found, err := h.sessions.RevokeSession(r.Context(), principal.ID, sessionID)
	if err != nil {
		h.errors.internal(w, r, "Failed to revoke session", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if sessionID == principal.SessionID {
		h.clearCookie(w)
	}

	writeJSON(w, http.StatusOK, success("Session revoked"))
}

// ChangePassword replaces the caller's password and logs out everywhere.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := validateRequest(req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.users.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "Current password is incorrect")
		case errors.Is(err, services.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			h.errors.internal(w, r, "Failed to change password", err)
		}
		return
	}

	if _, err := h.sessions.InvalidateAllSessions(r.Context(), principal.ID); err != nil {
		h.clearCookie(w)
		h.errors.internal(w, r, "Password changed, but existing sessions could not be ended", err)
		return
	}

	h.clearCookie(w)
	writeJSON(w, http.StatusOK, success("Password changed; please log in again"))
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	if h.cookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter) {
	if h.cookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeValidationErrors(w http.ResponseWriter, errs []FieldError) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Response: Response{Message: "Validation failed"},
		Errors:   errs,
	})
}
