package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/core/ports"
)

type pendingRun struct {
	total    int
	texts    map[int]string
	received time.Time
}

// ChunkConsumerUseCase buffers chunk envelopes per run and finishes a run once every chunk arrived.
type ChunkConsumerUseCase struct {
	codec    ports.ChunkCodec
	archive  ports.ObjectStorage
	reporter *ReportUseCase
	observer ports.PipelineObserver
	now      func() time.Time

	mu   sync.Mutex
	runs map[string]*pendingRun
}

func NewChunkConsumerUseCase(
	codec ports.ChunkCodec,
	archive ports.ObjectStorage,
	reporter *ReportUseCase,
	observer ports.PipelineObserver,
) *ChunkConsumerUseCase {
	if observer == nil {
		observer = nopObserver{}
	}
	return &ChunkConsumerUseCase{
		codec:    codec,
		archive:  archive,
		reporter: reporter,
		observer: observer,
		now:      time.Now,
		runs:     make(map[string]*pendingRun),
	}
}

func (uc *ChunkConsumerUseCase) HandleChunk(ctx context.Context, envelope domain.ChunkEnvelope) error {
	if envelope.RunID == "" || envelope.Total <= 0 || envelope.Index < 0 || envelope.Index >= envelope.Total {
		return domain.WrapError(domain.ErrInvalidInput, "handle chunk",
			fmt.Errorf("bad envelope run=%q index=%d total=%d", envelope.RunID, envelope.Index, envelope.Total))
	}
	if err := archiveChunk(ctx, uc.archive, envelope.RunID, envelope.Index, envelope.Text); err != nil {
		return err
	}

	texts, started, complete, err := uc.collect(envelope)
	if err != nil || !complete {
		return err
	}

	records := make([]domain.EncodedRecord, 0)
	for i, text := range texts {
		chunkRecords, err := uc.codec.Reassemble(i, text)
		if err != nil {
			uc.observer.ObserveStage(StageReassemble, 0, err)
			logMalformed(envelope.RunID, i, err)
			return fmt.Errorf("reassemble chunk %d: %w", i, err)
		}
		uc.observer.ObserveChunk(i, utf8.RuneCountInString(text), len(chunkRecords))
		records = append(records, chunkRecords...)
	}
	uc.observer.ObserveStage(StageReassemble, len(records), nil)

	_, err = uc.reporter.Complete(ctx, envelope.RunID, len(texts), records, started)
	return err
}

// collect stores the envelope and, when its run is complete, returns the texts in index order.
func (uc *ChunkConsumerUseCase) collect(envelope domain.ChunkEnvelope) ([]string, time.Time, bool, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	run, ok := uc.runs[envelope.RunID]
	if !ok {
		run = &pendingRun{
			total:    envelope.Total,
			texts:    make(map[int]string, envelope.Total),
			received: uc.now(),
		}
		uc.runs[envelope.RunID] = run
	}
	if run.total != envelope.Total {
		return nil, time.Time{}, false, domain.WrapError(domain.ErrInvalidInput, "handle chunk",
			fmt.Errorf("run %s announced %d chunks, envelope says %d", envelope.RunID, run.total, envelope.Total))
	}
	if prev, dup := run.texts[envelope.Index]; dup {
		if prev != envelope.Text {
			return nil, time.Time{}, false, domain.WrapError(domain.ErrInvalidInput, "handle chunk",
				errors.New("conflicting redelivery of chunk"))
		}
		slog.Debug("chunk_duplicate", "run_id", envelope.RunID, "chunk_index", envelope.Index)
		return nil, time.Time{}, false, nil
	}
	run.texts[envelope.Index] = envelope.Text
	slog.Debug("chunk_received",
		"run_id", envelope.RunID,
		"chunk_index", envelope.Index,
		"received", len(run.texts),
		"total", run.total,
	)
	if len(run.texts) < run.total {
		return nil, time.Time{}, false, nil
	}

	delete(uc.runs, envelope.RunID)
	texts := make([]string, run.total)
	for i := range texts {
		texts[i] = run.texts[i]
	}
	return texts, run.received, true, nil
}

// EvictStale drops runs that have been incomplete for longer than maxAge and returns their ids.
func (uc *ChunkConsumerUseCase) EvictStale(maxAge time.Duration) []string {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	var evicted []string
	cutoff := uc.now().Add(-maxAge)
	for id, run := range uc.runs {
		if run.received.Before(cutoff) {
			delete(uc.runs, id)
			evicted = append(evicted, id)
			slog.Warn("run_evicted", "run_id", id, "received", len(run.texts), "total", run.total)
		}
	}
	return evicted
}

func (uc *ChunkConsumerUseCase) PendingRuns() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.runs)
}
