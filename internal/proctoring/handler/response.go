package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"ihire-proctoring/backend/internal/platform/rbac"
	"ihire-proctoring/backend/internal/proctoring/domain"
)

// maxBodyBytes bounds request bodies; detection payloads carry per-frame model output.
const maxBodyBytes = 4 << 20

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("proctoring: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Success: false, Error: msg})
}

// fail logs err and writes the error envelope with the status for its class.
func fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("proctoring: %s failed: %v", op, err)
	} else {
		log.Printf("proctoring: %s rejected: %v", op, err)
	}
	writeError(w, status, messageFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, rbac.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionEnded), errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return domain.ValidationMessage(err)
	case errors.Is(err, domain.ErrNotFound):
		return "Session not found"
	default:
		return err.Error()
	}
}

// decodeJSON reads the request body into dst, writing a 400 or 413 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		log.Printf("proctoring: decode %s: %v", r.URL.Path, err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
