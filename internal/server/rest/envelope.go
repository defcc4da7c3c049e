package rest

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the failure envelope shared by every endpoint. Success
// stays false; Errors maps each failed aspect of the request to an error
// code, or to a list of validation messages.
type errorResponse struct {
	Success bool   `json:"Success"`
	Errors  any    `json:"Errors"`
	Message string `json:"Message,omitempty"`
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail writes the 400 envelope with a structured error object.
func fail(w http.ResponseWriter, errors any) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Errors: errors})
}

// writeInternalError writes the exception envelope used for statuses other
// than 400 and 403.
func writeInternalError(w http.ResponseWriter, status int) {
	writeJSON(w, status, errorResponse{Errors: map[string]any{
		"InternalError": "internal_error",
		"Code":          status,
	}})
}
