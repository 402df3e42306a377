package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type errorBody struct {
	Error string `json:"error"`
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if data == nil || status == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// serviceError maps an orchestration error onto an HTTP status. The service
// layer reports everything as message strings, so classification is by
// message shape: missing things are 404, caller mistakes are 400, upstream
// provider failures are 502.
func serviceError(w http.ResponseWriter, err error) {
	message := err.Error()
	status := http.StatusInternalServerError
	switch {
	case strings.Contains(message, "not found"):
		status = http.StatusNotFound
	case strings.Contains(message, "api status="),
		strings.Contains(message, "disabled in settings"):
		status = http.StatusBadGateway
	case strings.Contains(message, "required"),
		strings.Contains(message, "must"),
		strings.Contains(message, "at most"),
		strings.Contains(message, "unknown"),
		strings.Contains(message, "duplicate"),
		strings.Contains(message, "escapes"),
		strings.Contains(message, "no agents"),
		strings.Contains(message, "unable to parse"),
		strings.Contains(message, "missing"):
		status = http.StatusBadRequest
	}
	jsonError(w, status, message)
}
