package api

import "fmt"

// ErrorType represents the category of an engine error.
type ErrorType string

const (
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeUpstream       ErrorType = "upstream_error"
	ErrorTypeNotFound       ErrorType = "not_found"
)

// EngineError is a structured error with a type, optional parameter, and
// a message safe to show to users.
type EngineError struct {
	Type    ErrorType `json:"type"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewInvalidRequestError creates an EngineError for invalid request
// parameters.
func NewInvalidRequestError(param, message string) *EngineError {
	return &EngineError{Type: ErrorTypeInvalidRequest, Param: param, Message: message}
}

// NewUpstreamError creates an EngineError for upstream transport failures.
func NewUpstreamError(message string) *EngineError {
	return &EngineError{Type: ErrorTypeUpstream, Message: message}
}

// NewNotFoundError creates an EngineError for missing resources.
func NewNotFoundError(message string) *EngineError {
	return &EngineError{Type: ErrorTypeNotFound, Message: message}
}

// NewServerError creates an EngineError for internal failures.
func NewServerError(message string) *EngineError {
	return &EngineError{Type: ErrorTypeServerError, Message: message}
}

// IncompleteReasonMessage maps an upstream incompleteness reason to a
// short user-facing message. Raw internal reason strings are never shown
// to users.
func IncompleteReasonMessage(reason string) string {
	switch reason {
	case "max_output_tokens":
		return "The model reached the maximum output tokens limit."
	case "content_filter":
		return "The response was stopped by the content filter."
	default:
		return "The model stopped before completing the response."
	}
}
