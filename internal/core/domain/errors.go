package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrTransport      = errors.New("transport error")
	ErrRemote         = errors.New("remote error")
	ErrPollingAborted = errors.New("polling aborted")
	ErrPollTimeout    = errors.New("poll timeout")
	ErrNotFound       = errors.New("not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError reports a local precondition failure. It never reaches the network.
func ValidationError(message string) error {
	return fmt.Errorf("%w: %s", ErrValidation, message)
}

// RemoteError is a non-success response from the backend. Detail is the
// backend's human-readable message.
type RemoteError struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "remote error"
	}
	detail := strings.TrimSpace(e.Detail)
	if detail == "" {
		return fmt.Sprintf("%s: backend status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend status %d: %s", e.Operation, e.StatusCode, detail)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemote
}

// RemoteDetail extracts the backend detail message, if err carries one.
func RemoteDetail(err error) (string, bool) {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Detail, true
	}
	return "", false
}
