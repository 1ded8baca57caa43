package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buhlergroup/chatengine/pkg/api"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name       string
		errType    api.ErrorType
		wantStatus int
	}{
		{"invalid_request -> 400", api.ErrorTypeInvalidRequest, http.StatusBadRequest},
		{"not_found -> 404", api.ErrorTypeNotFound, http.StatusNotFound},
		{"upstream_error -> 502", api.ErrorTypeUpstream, http.StatusBadGateway},
		{"server_error -> 500", api.ErrorTypeServerError, http.StatusInternalServerError},
		{"unknown type -> 500", api.ErrorType("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &api.EngineError{Type: tt.errType, Message: "test"}
			if got := HTTPStatusFromError(err); got != tt.wantStatus {
				t.Errorf("HTTPStatusFromError(%q) = %d, want %d", tt.errType, got, tt.wantStatus)
			}
		})
	}
}

func TestWriteErrorResponse(t *testing.T) {
	apiErr := api.NewInvalidRequestError("threadId", "threadId is required")
	rec := httptest.NewRecorder()

	WriteErrorResponse(rec, apiErr, http.StatusBadRequest)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var resp struct {
		Error *api.EngineError `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error type = %q, want %q", resp.Error.Type, api.ErrorTypeInvalidRequest)
	}
	if resp.Error.Param != "threadId" {
		t.Errorf("error param = %q, want %q", resp.Error.Param, "threadId")
	}
}

func TestWriteEngineErrorDerivesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteEngineError(rec, api.NewNotFoundError("no turn in flight for thread"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
