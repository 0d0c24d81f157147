package httpadapter

import (
	"net/http"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrMalformedChunk):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
