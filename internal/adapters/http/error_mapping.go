package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrInvalidConfig):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound),
		domain.IsKind(err, domain.ErrSnapshotNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCorpusNotReady),
		domain.IsKind(err, domain.ErrBuildInProgress),
		domain.IsKind(err, domain.ErrFlowFinished),
		domain.IsKind(err, domain.ErrStepInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
