package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/core/ports"
)

// ReportUseCase classifies reconstructed records and hands them to every sink.
type ReportUseCase struct {
	classifier ports.RecordClassifier
	sinks      []ports.ReportSink
	observer   ports.PipelineObserver
}

func NewReportUseCase(
	classifier ports.RecordClassifier,
	observer ports.PipelineObserver,
	sinks ...ports.ReportSink,
) *ReportUseCase {
	if observer == nil {
		observer = nopObserver{}
	}
	return &ReportUseCase{
		classifier: classifier,
		sinks:      sinks,
		observer:   observer,
	}
}

func (uc *ReportUseCase) Complete(
	ctx context.Context,
	runID string,
	chunks int,
	records []domain.EncodedRecord,
	started time.Time,
) (domain.RunSummary, error) {
	classified := make([]domain.ClassifiedRecord, 0, len(records))
	for _, rec := range records {
		classified = append(classified, uc.classifier.Classify(rec))
	}
	uc.observer.ObserveStage(StageClassify, len(classified), nil)

	summary := BuildSummary(runID, chunks, classified)
	for _, sink := range uc.sinks {
		if err := sink.WriteReport(ctx, summary, classified); err != nil {
			uc.observer.ObserveStage(StageReport, 0, err)
			return domain.RunSummary{}, fmt.Errorf("write report: %w", err)
		}
	}
	uc.observer.ObserveStage(StageReport, len(classified), nil)
	uc.observer.ObserveRun(summary, time.Since(started))

	slog.Info("run_completed",
		"run_id", runID,
		"providers", summary.Total,
		"chunks", summary.Chunks,
		"tier1", summary.TierCounts[domain.Tier1],
		"tier2", summary.TierCounts[domain.Tier2],
		"tier3", summary.TierCounts[domain.Tier3],
		"relevant", summary.Relevant,
		"special_market", summary.SpecialMarket,
		"high_volume", summary.HighVolume,
		"with_contact", summary.WithContact,
		"with_website", summary.WithWebsite,
		"top_states", summary.TopStates,
		"by_type", summary.ByType,
	)
	return summary, nil
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, int, error)             {}
func (nopObserver) ObserveChunk(int, int, int)                  {}
func (nopObserver) ObserveRun(domain.RunSummary, time.Duration) {}
