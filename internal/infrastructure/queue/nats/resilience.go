package nats

import (
	"context"
	"errors"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// Operation names passed to the executor and used when wrapping errors.
const (
	opPublish = "nats.publish"
	opFlush   = "nats.flush"
)

// transientErrors clear up once the client reconnects.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrStaleConnection,
	nats.ErrSlowConsumer,
	nats.ErrReconnectBufExceeded,
}

// rejectedErrors mean the server will never accept this chunk as sent.
var rejectedErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
	nats.ErrInvalidMsg,
}

func isAnyOf(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case resilience.IsCircuitOpen(err), isAnyOf(err, transientErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAnyOf(err, rejectedErrors):
		// The broker is healthy; the chunk is the problem.
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

// wrapTemporaryIfNeeded maps a publish or flush failure onto the domain error kinds:
// transient broker trouble becomes ErrTemporary, a chunk the broker refuses becomes
// ErrInvalidInput. Anything else is returned unchanged.
func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	if isAnyOf(err, rejectedErrors) {
		return domain.WrapError(domain.ErrInvalidInput, operation, err)
	}
	class := classifyNATSError(err)
	if class.Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
