package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON error envelope exposed to the dashboard.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func WriteError(w http.ResponseWriter, statusCode int, errText, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errText,
		Message: message,
	})
}

// WriteNotConfigured signals that the account has no fax provider
// credentials bound. The exact error string is load-bearing: the dashboard
// matches on it to prompt for credentials.
func WriteNotConfigured(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, "interfax credentials not configured", "")
}

func WriteAuthError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "Authentication required", message)
}

func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, "Validation failed", message)
}

func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "Not found", message)
}

func WriteInternalError(w http.ResponseWriter, errText, message string) {
	WriteError(w, http.StatusInternalServerError, errText, message)
}
