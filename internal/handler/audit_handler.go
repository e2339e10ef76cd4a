package handler

import (
	"net/http"
	"strings"
	"time"

	"go-admin-auth/internal/model"
	"go-admin-auth/internal/service"
	"go-admin-auth/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseOptionalTime(query.Get("from"))
	if err != nil {
		writeError(w, apierror.Validation("invalid 'from' datetime format", "from"))
		return
	}
	to, err := parseOptionalTime(query.Get("to"))
	if err != nil {
		writeError(w, apierror.Validation("invalid 'to' datetime format", "to"))
		return
	}

	items, meta, err := h.service.Query(r.Context(), model.AuditQuery{
		Action:  strings.TrimSpace(query.Get("action")),
		ActorID: strings.TrimSpace(query.Get("actorId")),
		Status:  strings.TrimSpace(query.Get("status")),
		From:    from,
		To:      to,
		Page:    parseIntOrDefault(query.Get("page"), 1),
		Limit:   parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}

func parseOptionalTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	value, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
