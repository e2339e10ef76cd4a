package handler

import (
	"net/http"

	"go-admin-auth/internal/middleware"
	"go-admin-auth/internal/model"
	"go-admin-auth/internal/service"
	"go-admin-auth/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), payload.Email, payload.Password, middleware.ClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), payload.RefreshToken, middleware.ClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

// Logout acknowledges a client-side logout. Tokens are stateless and stay
// valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"loggedOut": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized())
		return
	}

	user, err := h.service.Me(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

// Permissions answers whether the caller may perform action on resource, so
// clients can hide controls they cannot use.
func (h *AuthHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized())
		return
	}

	query := r.URL.Query()
	check, err := h.service.Can(principal.Roles, query.Get("action"), query.Get("resource"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, check, nil)
}
