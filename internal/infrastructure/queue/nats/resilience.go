package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/resilience"
)

const publishOperation = "nats_publish"

// classifyPublishError decides how a corpus event publish failure is
// handled. Connection trouble is retried; a rejected event would be
// rejected again, so it fails fast.
func classifyPublishError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	switch {
	case isRejectedEvent(err):
		return resilience.Permanent
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		return resilience.Transient
	}
	return resilience.Permanent
}

// isRejectedEvent covers failures caused by the event or the subject
// rather than the connection.
func isRejectedEvent(err error) bool {
	return errors.Is(err, nats.ErrMaxPayload) ||
		errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrPermissionViolation) ||
		errors.Is(err, nats.ErrAuthorization)
}

// wrapPublishError reports an oversized event or an unusable subject as a
// configuration problem and connection trouble as temporary.
func wrapPublishError(err error) error {
	if err == nil {
		return nil
	}
	if isRejectedEvent(err) {
		return domain.WrapError(domain.ErrInvalidConfig, "publish corpus event", err)
	}
	return resilience.WrapTemporary(publishOperation, err, classifyPublishError)
}
