package upstream

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResourceExpired marks a failure caused by a stale server-side
// execution resource (an expired sandbox container). The orchestrator
// retries the turn exactly once with the stale reference removed.
var ErrResourceExpired = errors.New("upstream: execution resource expired")

// resourceExpiredError wraps backend error details while matching
// ErrResourceExpired via errors.Is.
type resourceExpiredError struct {
	code    string
	message string
}

func (e *resourceExpiredError) Error() string {
	return fmt.Sprintf("upstream: execution resource expired (%s): %s", e.code, e.message)
}

func (e *resourceExpiredError) Is(target error) bool {
	return target == ErrResourceExpired
}

// classifyBackendError converts a backend error code/message pair into an
// error value, detecting the expired-container condition by code or by
// the known message shape.
func classifyBackendError(code, message string) error {
	if code == "container_expired" || strings.Contains(message, "Container is expired") {
		return &resourceExpiredError{code: code, message: message}
	}
	if message == "" {
		message = "backend stream failed"
	}
	return fmt.Errorf("upstream: %s", message)
}

// IsResourceExpired reports whether err denotes a stale execution
// resource.
func IsResourceExpired(err error) bool {
	return errors.Is(err, ErrResourceExpired)
}
