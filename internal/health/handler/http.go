package handler

import (
	"encoding/json"
	"net/http"
)

// HTTPHandler serves GET /health. It answers 200 when serving and 503 otherwise.
type HTTPHandler struct {
	checker *Checker
}

// NewHTTPHandler returns the /health endpoint backed by checker.
func NewHTTPHandler(checker *Checker) *HTTPHandler {
	return &HTTPHandler{checker: checker}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	report := h.checker.Check(r.Context())
	status := http.StatusOK
	if !report.Serving() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
