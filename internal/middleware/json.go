package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go-admin-auth/internal/model"
	"go-admin-auth/pkg/apierror"
)

func jsonEncode(w http.ResponseWriter, value any) error {
	return json.NewEncoder(w).Encode(value)
}

func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		apiErr = apierror.New(apierror.CodeInternal, "unexpected server error", "", http.StatusInternalServerError)
	}

	if apiErr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfterSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}
