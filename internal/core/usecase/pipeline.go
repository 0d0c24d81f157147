package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/core/ports"
)

const (
	StageResolve    = "resolve"
	StageFetch      = "fetch"
	StageEncode     = "encode"
	StageSplit      = "split"
	StageTransit    = "transit"
	StageReassemble = "reassemble"
	StagePublish    = "publish"
	StageClassify   = "classify"
	StageReport     = "report"
)

// PipelineUseCase runs fetch, encode, split, transit and reassembly, then classifies and reports.
// With a publisher configured, chunks are handed to a queue instead and a worker finishes the run.
type PipelineUseCase struct {
	resolver  ports.TaxonomyResolver
	fetcher   ports.CatalogFetcher
	encoder   ports.RecordEncoder
	codec     ports.ChunkCodec
	channel   ports.TransitChannel
	publisher ports.ChunkQueue
	archive   ports.ObjectStorage
	reporter  *ReportUseCase
	observer  ports.PipelineObserver
	newRunID  func() string
}

func NewPipelineUseCase(
	resolver ports.TaxonomyResolver,
	fetcher ports.CatalogFetcher,
	encoder ports.RecordEncoder,
	codec ports.ChunkCodec,
	channel ports.TransitChannel,
	publisher ports.ChunkQueue,
	archive ports.ObjectStorage,
	reporter *ReportUseCase,
	observer ports.PipelineObserver,
) *PipelineUseCase {
	if observer == nil {
		observer = nopObserver{}
	}
	return &PipelineUseCase{
		resolver:  resolver,
		fetcher:   fetcher,
		encoder:   encoder,
		codec:     codec,
		channel:   channel,
		publisher: publisher,
		archive:   archive,
		reporter:  reporter,
		observer:  observer,
		newRunID:  uuid.NewString,
	}
}

func (uc *PipelineUseCase) Run(ctx context.Context) (domain.RunSummary, error) {
	started := time.Now()
	runID := uc.newRunID()
	logger := slog.With("run_id", runID)

	maps, err := uc.resolver.ResolveAll(ctx)
	uc.observer.ObserveStage(StageResolve, countTerms(maps), err)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("resolve taxonomies: %w", err)
	}

	entries, err := uc.fetcher.FetchAll(ctx)
	uc.observer.ObserveStage(StageFetch, len(entries), err)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("fetch catalog: %w", err)
	}
	logger.Info("catalog_fetched", "entries", len(entries), "terms", countTerms(maps))

	records := uc.encoder.EncodeAll(entries, maps)
	uc.observer.ObserveStage(StageEncode, len(records), nil)

	chunks, err := uc.codec.Split(records)
	uc.observer.ObserveStage(StageSplit, len(chunks), err)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("split records: %w", err)
	}
	logger.Info("records_split", "records", len(records), "chunks", len(chunks))

	if uc.publisher != nil {
		return uc.publish(ctx, runID, records, chunks)
	}

	rebuilt, err := uc.transit(ctx, runID, chunks)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if len(rebuilt) != len(records) {
		return domain.RunSummary{}, domain.WrapError(domain.ErrMalformedChunk, "reassemble records",
			fmt.Errorf("expected %d records, rebuilt %d", len(records), len(rebuilt)))
	}

	return uc.reporter.Complete(ctx, runID, len(chunks), rebuilt, started)
}

func (uc *PipelineUseCase) transit(ctx context.Context, runID string, chunks []domain.Chunk) ([]domain.EncodedRecord, error) {
	out := make([]domain.EncodedRecord, 0)
	for _, chunk := range chunks {
		text, err := uc.channel.Transit(ctx, chunk)
		if err != nil {
			uc.observer.ObserveStage(StageTransit, 0, err)
			return nil, fmt.Errorf("transit chunk %d: %w", chunk.Index, err)
		}
		if err := archiveChunk(ctx, uc.archive, runID, chunk.Index, text); err != nil {
			return nil, err
		}

		records, err := uc.codec.Reassemble(chunk.Index, text)
		if err != nil {
			uc.observer.ObserveStage(StageReassemble, 0, err)
			logMalformed(runID, chunk.Index, err)
			return nil, fmt.Errorf("reassemble chunk %d: %w", chunk.Index, err)
		}
		uc.observer.ObserveChunk(chunk.Index, utf8.RuneCountInString(text), len(records))
		out = append(out, records...)
	}
	uc.observer.ObserveStage(StageTransit, len(chunks), nil)
	uc.observer.ObserveStage(StageReassemble, len(out), nil)
	return out, nil
}

func (uc *PipelineUseCase) publish(
	ctx context.Context,
	runID string,
	records []domain.EncodedRecord,
	chunks []domain.Chunk,
) (domain.RunSummary, error) {
	for _, chunk := range chunks {
		if err := archiveChunk(ctx, uc.archive, runID, chunk.Index, chunk.Text); err != nil {
			return domain.RunSummary{}, err
		}
		err := uc.publisher.PublishChunk(ctx, domain.ChunkEnvelope{
			RunID: runID,
			Index: chunk.Index,
			Total: len(chunks),
			Text:  chunk.Text,
		})
		if err != nil {
			uc.observer.ObserveStage(StagePublish, 0, err)
			return domain.RunSummary{}, fmt.Errorf("publish chunk %d: %w", chunk.Index, err)
		}
	}
	uc.observer.ObserveStage(StagePublish, len(chunks), nil)
	slog.Info("chunks_published", "run_id", runID, "chunks", len(chunks), "records", len(records))

	return domain.RunSummary{
		RunID:  runID,
		Total:  len(records),
		Chunks: len(chunks),
	}, nil
}

func archiveChunk(ctx context.Context, archive ports.ObjectStorage, runID string, index int, text string) error {
	if archive == nil {
		return nil
	}
	if err := archive.Save(ctx, domain.ChunkArchiveKey(runID, index), strings.NewReader(text)); err != nil {
		return fmt.Errorf("archive chunk %d: %w", index, err)
	}
	return nil
}

func logMalformed(runID string, index int, err error) {
	var malformed *domain.MalformedChunkError
	if errors.As(err, &malformed) {
		slog.Error("chunk_malformed",
			"run_id", runID,
			"chunk_index", malformed.Index,
			"tokens", malformed.Tokens,
			"reason", malformed.Reason,
		)
		return
	}
	slog.Error("chunk_malformed", "run_id", runID, "chunk_index", index, "error", err)
}

func countTerms(maps domain.TaxonomyMaps) int {
	n := 0
	for _, terms := range maps {
		n += len(terms)
	}
	return n
}
