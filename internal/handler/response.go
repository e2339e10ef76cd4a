package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go-admin-auth/internal/model"
	"go-admin-auth/pkg/apierror"
)

const maxBodyBytes = 1 << 20

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    apierror.CodeInternal,
		Message: "unexpected server error",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		if apiErr.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfterSeconds))
		}
	} else if errors.Is(err, model.ErrUserNotFound) {
		status = http.StatusNotFound
		body.Code = apierror.CodeNotFound
		body.Message = "user not found"
	} else if errors.Is(err, model.ErrUserAlreadyExists) {
		status = http.StatusConflict
		body.Code = apierror.CodeConflict
		body.Message = "a user with this email already exists"
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads a single JSON object of at most maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.Validation("request body is required", "")
		}
		return apierror.Validation("invalid JSON body", "")
	}
	if decoder.More() {
		return apierror.Validation("request body must contain a single JSON object", "")
	}
	return nil
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func requiredParam(name string, value string) error {
	if strings.TrimSpace(value) == "" {
		return apierror.Validation(fmt.Sprintf("%s is required", name), name)
	}
	return nil
}
