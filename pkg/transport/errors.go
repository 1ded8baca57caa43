package transport

import (
	"encoding/json"
	"net/http"

	"github.com/buhlergroup/chatengine/pkg/api"
)

// HTTPStatusFromError maps an EngineError type to an HTTP status code.
func HTTPStatusFromError(err *api.EngineError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response with the given status.
// Used before streaming starts; once the SSE stream is open, errors
// travel as outward error events instead.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.EngineError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(struct {
		Error *api.EngineError `json:"error"`
	}{apiErr})
}

// WriteEngineError writes an error response, deriving the HTTP status
// code from the error type.
func WriteEngineError(w http.ResponseWriter, apiErr *api.EngineError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
