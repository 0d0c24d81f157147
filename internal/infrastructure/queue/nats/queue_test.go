package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/nats-io/nats.go"
)

func TestEnvelopeRoundTripThroughHeaders(t *testing.T) {
	want := domain.ChunkEnvelope{RunID: "run-1", Index: 2, Total: 5, Text: "~a~b ~c~d"}
	msg := encodeEnvelope("providers.chunks", want)
	if msg.Subject != "providers.chunks" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}

	got, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decodeEnvelope() error = %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDecodeEnvelopeRejectsBadHeaders(t *testing.T) {
	cases := map[string]func(*nats.Msg){
		"no run id":         func(m *nats.Msg) { m.Header.Del(headerRunID) },
		"bad index":         func(m *nats.Msg) { m.Header.Set(headerIndex, "x") },
		"bad total":         func(m *nats.Msg) { m.Header.Set(headerTotal, "") },
		"index past end":    func(m *nats.Msg) { m.Header.Set(headerIndex, "5") },
		"negative index":    func(m *nats.Msg) { m.Header.Set(headerIndex, "-1") },
		"no headers at all": func(m *nats.Msg) { m.Header = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			msg := encodeEnvelope("s", domain.ChunkEnvelope{RunID: "r", Index: 1, Total: 5})
			mutate(msg)
			if _, err := decodeEnvelope(msg); !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(nats.ErrNoServers); !class.Retryable {
		t.Fatalf("no servers must be retryable")
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must be neither retryable nor recorded")
	}
	if class := classifyNATSError(errors.New("boom")); class.Retryable {
		t.Fatalf("unknown errors must not be retried")
	}
}

func TestClassifyNATSErrorRejectedChunk(t *testing.T) {
	class := classifyNATSError(fmt.Errorf("publish chunk 3: %w", nats.ErrMaxPayload))
	if class.Retryable || class.RecordFailure {
		t.Fatalf("oversize payload must be neither retried nor counted against the broker, got %+v", class)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	cases := []struct {
		name      string
		operation string
		err       error
		kind      error
	}{
		{name: "publish timeout", operation: opPublish, err: nats.ErrTimeout, kind: domain.ErrTemporary},
		{name: "flush timeout", operation: opFlush, err: nats.ErrTimeout, kind: domain.ErrTemporary},
		{name: "flush on closed connection", operation: opFlush, err: nats.ErrConnectionClosed, kind: domain.ErrTemporary},
		{name: "payload too large", operation: opPublish, err: nats.ErrMaxPayload, kind: domain.ErrInvalidInput},
		{name: "bad subject", operation: opPublish, err: nats.ErrBadSubject, kind: domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapTemporaryIfNeeded(tc.operation, tc.err)
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected cause %v to be kept, got %v", tc.err, err)
			}
			if !strings.HasPrefix(err.Error(), tc.operation+":") {
				t.Fatalf("expected error to name operation %q, got %q", tc.operation, err.Error())
			}
		})
	}

	plain := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(opPublish, plain); got != plain {
		t.Fatalf("expected non-retryable error unchanged, got %v", got)
	}
	if got := wrapTemporaryIfNeeded(opFlush, nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	already := domain.WrapError(domain.ErrTemporary, opPublish, nats.ErrTimeout)
	if got := wrapTemporaryIfNeeded(opFlush, already); got != already {
		t.Fatalf("expected already-kinded error unchanged, got %v", got)
	}
}
