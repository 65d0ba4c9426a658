package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in the "error" member of error bodies
const (
	CodeInvalidInput = "invalid_input"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInternal     = "internal_error"
	CodeUnavailable  = "unavailable"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	Details     any    `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes data with 200 OK
func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes 204 No Content
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes an ErrorResponse
func WriteError(w http.ResponseWriter, status int, code, description string, details any) {
	WriteJSON(w, status, ErrorResponse{
		Error:       code,
		Description: description,
		Details:     details,
	})
}

// WriteBadRequest writes a 400 invalid_input error
func WriteBadRequest(w http.ResponseWriter, description string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidInput, description, nil)
}

// WriteNotFound writes a 404 error
func WriteNotFound(w http.ResponseWriter, description string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, description, nil)
}

// WriteConflict writes a 409 error
func WriteConflict(w http.ResponseWriter, description string) {
	WriteError(w, http.StatusConflict, CodeConflict, description, nil)
}

// WriteInternalError writes a 500 with a fixed description. Causes are
// logged by the caller, never sent.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "an internal error occurred", nil)
}

// WriteServiceUnavailable writes a 503 error
func WriteServiceUnavailable(w http.ResponseWriter, description string) {
	WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, description, nil)
}
