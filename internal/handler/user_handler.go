package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-admin-auth/internal/middleware"
	"go-admin-auth/internal/model"
	"go-admin-auth/internal/service"
)

type UserHandler struct {
	service *service.UserService
}

func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, users, nil)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := requiredParam("id", userID); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.CreateUserRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Create(r.Context(), actorFromRequest(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	userID := chi.URLParam(r, "id")
	if err := requiredParam("id", userID); err != nil {
		writeError(w, err)
		return
	}

	var payload model.UpdateUserRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Update(r.Context(), actorFromRequest(r), userID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := requiredParam("id", userID); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), actorFromRequest(r), userID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true, "id": userID}, nil)
}

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r)}

	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = principal.UserID
	actor.Email = principal.Email
	return actor
}
