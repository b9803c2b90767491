package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mto-maintenance/apiserver/internal/rbac"
	"github.com/mto-maintenance/apiserver/internal/services"
	"github.com/mto-maintenance/apiserver/types"
)

// UserHandler provides user administration endpoints.
type UserHandler struct {
	users    *services.UserService
	sessions *services.SessionService
	errors   Errors
}

func NewUserHandler(users *services.UserService, sessions *services.SessionService, errs Errors) *UserHandler {
	return &UserHandler{users: users, sessions: sessions, errors: errs}
}

// UserRouter registers user routes. Every route requires authenticate.
func UserRouter(r chi.Router, h *UserHandler, authenticate func(http.Handler) http.Handler) {
	r.Use(authenticate)

	r.With(AuthorizePermission(rbac.ModuleUsers, rbac.ActionRead)).Get("/", h.ListUsers)
	r.Route("/{userID}", func(r chi.Router) {
		r.With(AuthorizePermission(rbac.ModuleUsers, rbac.ActionRead)).Get("/", h.GetUser)

		r.Group(func(r chi.Router) {
			r.Use(AuthorizeRole(types.RoleCommandingOfficer))
			r.Post("/deactivate", h.Deactivate)
			r.Post("/activate", h.Activate)
		})
	})
}

type UserListResponse struct {
	Response
	Items []types.User `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

type UserResponse struct {
	Response
	User types.User `json:"user"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.users.List(r.Context(), offset, limit)
	if err != nil {
		h.errors.internal(w, r, "Failed to list users", err)
		return
	}
	if items == nil {
		items = []types.User{}
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Response: success("Users"),
		Items:    items,
		Page:     page,
		Limit:    limit,
		Total:    total,
	})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.GetByID(r.Context(), int(id))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.errors.internal(w, r, "Failed to get user", err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{Response: success("User"), User: user})
}

// Deactivate locks a user out and ends all of their sessions.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if int(id) == principal.ID {
		writeError(w, http.StatusBadRequest, "You cannot deactivate your own account")
		return
	}

	if !h.setActive(w, r, int(id), false) {
		return
	}
	if _, err := h.sessions.InvalidateAllSessions(r.Context(), int(id)); err != nil {
		h.errors.internal(w, r, "Failed to end sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, success("User deactivated"))
}

func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.setActive(w, r, int(id), true) {
		return
	}

	writeJSON(w, http.StatusOK, success("User activated"))
}

func (h *UserHandler) setActive(w http.ResponseWriter, r *http.Request, id int, active bool) bool {
	if err := h.users.SetActive(r.Context(), id, active); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return false
		}
		h.errors.internal(w, r, "Failed to update user", err)
		return false
	}
	return true
}
