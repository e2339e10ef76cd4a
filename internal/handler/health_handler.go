package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go-admin-auth/pkg/apierror"
)

type pinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	db pinger
}

// NewHealthHandler accepts a nil db for deployments without a database check.
func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Health(ctx); err != nil {
			slog.Warn("health check failed", "error", err.Error())
			writeError(w, apierror.New(apierror.CodeUnavailable, "database unreachable", "", http.StatusServiceUnavailable))
			return
		}
	}

	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}
