package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/refnexus/platform/internal/domain"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError for
// status codes. Internal errors and errors carrying a cause are logged with
// the request logger; their details never reach the client.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		appErr = domain.ErrInternal("unhandled error", err)
	}

	if appErr.Status >= http.StatusInternalServerError || appErr.Cause != nil {
		LoggerFromContext(r.Context()).Error("request failed",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", appErr.Cause,
		)
	}

	if appErr.Code == "INTERNAL_ERROR" {
		RespondJSON(w, appErr.Status, map[string]string{
			"code":    "INTERNAL_ERROR",
			"message": "internal server error",
		})
		return
	}
	RespondJSON(w, appErr.Status, appErr)
}

// DecodeJSON reads and decodes a JSON request body into dst. Bodies over
// 1 MiB are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
}

// decodeBody decodes into dst and writes a validation error on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := DecodeJSON(r, dst); err != nil {
		RespondError(w, r, domain.ErrValidation("invalid request body"))
		return false
	}
	return true
}
