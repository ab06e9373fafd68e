package httputil

import (
	"encoding/json"
	"net/http"
)

// Messages carried in APIResponse bodies
const (
	MessageUnauthorized = "User does not have sufficient permission."
	MessageNotFound     = "Resource not found"
	MessageUnavailable  = "Authorization could not be determined: directory unavailable."
)

// APIResponse is the error envelope returned by the API
type APIResponse struct {
	StatusCode int      `json:"statusCode"`
	Errors     []string `json:"errors"`
}

// NewAPIResponse builds an envelope for status with the given messages
func NewAPIResponse(status int, messages ...string) APIResponse {
	if messages == nil {
		messages = []string{}
	}
	return APIResponse{StatusCode: status, Errors: messages}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteAPIError writes an APIResponse envelope
func WriteAPIError(w http.ResponseWriter, status int, messages ...string) {
	WriteJSON(w, status, NewAPIResponse(status, messages...))
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteAPIError(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes the insufficient permission error (401)
func WriteUnauthorized(w http.ResponseWriter) {
	WriteAPIError(w, http.StatusUnauthorized, MessageUnauthorized)
}

// WriteUnauthenticated writes a 401 for a missing or invalid credential
func WriteUnauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteAPIError(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteAPIError(w, http.StatusForbidden, message)
}

// WriteNotFound writes the resource not found error (404)
func WriteNotFound(w http.ResponseWriter) {
	WriteAPIError(w, http.StatusNotFound, MessageNotFound)
}

// WriteUnavailable writes the undetermined authorization error (503)
func WriteUnavailable(w http.ResponseWriter) {
	WriteAPIError(w, http.StatusServiceUnavailable, MessageUnavailable)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteAPIError(w, http.StatusInternalServerError, message)
}
