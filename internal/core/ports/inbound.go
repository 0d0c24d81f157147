package ports

import (
	"context"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

// PipelineRunner is the inbound contract for a full extract-and-classify run.
type PipelineRunner interface {
	Run(ctx context.Context) (domain.RunSummary, error)
}

// ChunkConsumer is the inbound contract for a worker receiving chunk envelopes.
type ChunkConsumer interface {
	HandleChunk(ctx context.Context, envelope domain.ChunkEnvelope) error
}
