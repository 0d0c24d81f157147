package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedChunk      = errors.New("malformed chunk")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
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

// MalformedChunkError reports a chunk whose token count is not a multiple of FieldCount.
type MalformedChunkError struct {
	Index  int
	Tokens int
	Reason string
}

func (e *MalformedChunkError) Error() string {
	if e == nil {
		return ErrMalformedChunk.Error()
	}
	if e.Reason != "" {
		return fmt.Sprintf("malformed chunk %d: %s (tokens=%d)", e.Index, e.Reason, e.Tokens)
	}
	return fmt.Sprintf("malformed chunk %d: %d tokens is not a multiple of %d", e.Index, e.Tokens, FieldCount)
}

func (e *MalformedChunkError) Unwrap() error {
	return ErrMalformedChunk
}
