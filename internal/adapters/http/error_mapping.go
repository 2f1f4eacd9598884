package httpadapter

import (
	"net/http"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrPollingAborted):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrPollTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrRemote):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	if detail, ok := domain.RemoteDetail(err); ok {
		resp.Detail = detail
	}
	writeJSON(w, mapErrorToHTTPStatus(err), resp)
}
