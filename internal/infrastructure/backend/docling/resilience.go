package docling

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

// recordsFailure decides which errors count against the circuit breaker.
// Client-side mistakes and caller cancellation say nothing about backend health.
func recordsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode >= http.StatusInternalServerError ||
			remoteErr.StatusCode == http.StatusTooManyRequests ||
			remoteErr.StatusCode == http.StatusRequestTimeout
	}
	return true
}
