package user

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alxtim10/alx-auth/internal/api"
	"github.com/alxtim10/alx-auth/internal/api/auth"
)

// UserHandler handles the administrative /users endpoints.
type UserHandler struct {
	userService UserService
	logger      *slog.Logger
}

func NewUserHandler(userService UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// ListUsers handles GET /users.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.userService.ListUsers(r.Context(), params)
	if err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, page)
}

// GetUser handles GET /users/{id}.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID")
		return
	}

	u, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, NewUserResponse(u))
}

// UpdateUser handles PUT /users/{id}.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID")
		return
	}

	actorID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	role, _ := auth.GetUserRoleFromContext(r.Context())

	var req UpdateUserRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.userService.UpdateUser(r.Context(), actorID, userID, req, role == api.RoleAdmin)
	if err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, NewUserResponse(u))
}

// DeleteUser handles DELETE /users/{id}.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID")
		return
	}

	actorID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.userService.SoftDeleteUser(r.Context(), actorID, userID); err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseListParams(r *http.Request) (ListUsersParams, error) {
	q := r.URL.Query()
	params := ListUsersParams{
		Sort:  q.Get("sort"),
		Dir:   q.Get("dir"),
		Query: q.Get("q"),
		Role:  q.Get("role"),
	}

	var err error
	if v := q.Get("page"); v != "" {
		if params.Page, err = strconv.Atoi(v); err != nil {
			return params, errInvalidParam("page")
		}
	}
	if v := q.Get("size"); v != "" {
		if params.Size, err = strconv.Atoi(v); err != nil {
			return params, errInvalidParam("size")
		}
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return params, errInvalidParam("active")
		}
		params.Active = &active
	}
	if v := q.Get("createdFrom"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, errInvalidParam("createdFrom")
		}
		params.CreatedFrom = &t
	}
	if v := q.Get("createdTo"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, errInvalidParam("createdTo")
		}
		params.CreatedTo = &t
	}

	return params, nil
}

type invalidParamError struct{ name string }

func (e invalidParamError) Error() string { return "invalid query parameter: " + e.name }

func errInvalidParam(name string) error { return invalidParamError{name: name} }
