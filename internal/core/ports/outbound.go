package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

// PageSource yields raw upstream pages. Retries and timeouts are its own concern.
type PageSource interface {
	// CatalogPage returns one page of catalog entries and the server-declared total.
	CatalogPage(ctx context.Context, page, pageSize int) ([]domain.CatalogEntry, int, error)
	TaxonomyPage(ctx context.Context, vocabulary domain.Vocabulary, page, pageSize int) ([]domain.TaxonomyTerm, error)
}

// TaxonomyResolver builds id -> slug lookups for the vocabularies.
type TaxonomyResolver interface {
	ResolveAll(ctx context.Context) (domain.TaxonomyMaps, error)
}

// CatalogFetcher returns every catalog entry in page order.
type CatalogFetcher interface {
	FetchAll(ctx context.Context) ([]domain.CatalogEntry, error)
}

// RecordEncoder flattens a raw entry into the fixed wire schema.
type RecordEncoder interface {
	Encode(entry domain.CatalogEntry, maps domain.TaxonomyMaps) domain.EncodedRecord
	EncodeAll(entries []domain.CatalogEntry, maps domain.TaxonomyMaps) []domain.EncodedRecord
}

// ChunkCodec splits records into bounded chunks and rebuilds them from degraded text.
type ChunkCodec interface {
	Split(records []domain.EncodedRecord) ([]domain.Chunk, error)
	Reassemble(index int, text string) ([]domain.EncodedRecord, error)
}

// TransitChannel carries one chunk's text and returns what arrived on the other side.
type TransitChannel interface {
	Transit(ctx context.Context, chunk domain.Chunk) (string, error)
}

// ChunkQueue publishes/consumes chunk envelopes between scraper and worker.
type ChunkQueue interface {
	PublishChunk(ctx context.Context, envelope domain.ChunkEnvelope) error
	SubscribeChunks(ctx context.Context, handler func(context.Context, domain.ChunkEnvelope) error) error
}

// RecordClassifier enriches reconstructed records.
type RecordClassifier interface {
	Classify(record domain.EncodedRecord) domain.ClassifiedRecord
}

// ReportSink consumes the classified records of one run.
type ReportSink interface {
	WriteReport(ctx context.Context, summary domain.RunSummary, records []domain.ClassifiedRecord) error
}

// ObjectStorage archives chunk payloads.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// PipelineObserver receives per-stage measurements.
type PipelineObserver interface {
	ObserveStage(stage string, items int, err error)
	ObserveChunk(index, chars, records int)
	ObserveRun(summary domain.RunSummary, duration time.Duration)
}
