package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures fail fast but still count against the breaker.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures are neither retried nor counted.
	Ignored = ErrorClassification{}
)

// ClassifyCommon settles what every adapter treats alike. Caller
// cancellation is Ignored and an open circuit is Transient. ok is false
// when the adapter has to decide.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	return ErrorClassification{}, false
}

// WrapTemporary marks err as domain.ErrTemporary when classify would retry it
// or the circuit is open, so callers can tell "try later" from "broken".
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || classify(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
