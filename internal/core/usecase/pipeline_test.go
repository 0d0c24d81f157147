package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/provider-intel/internal/config"
	"github.com/kirillkom/provider-intel/internal/core/catalog"
	"github.com/kirillkom/provider-intel/internal/core/classify"
	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/core/encoding"
	"github.com/kirillkom/provider-intel/internal/core/taxonomy"
	"github.com/kirillkom/provider-intel/internal/infrastructure/channel"
	"github.com/kirillkom/provider-intel/internal/infrastructure/chunking"
)

type pageSourceFake struct {
	catalog [][]domain.CatalogEntry
	total   int
	terms   map[domain.Vocabulary][]domain.TaxonomyTerm
	failAt  int
}

func (f *pageSourceFake) CatalogPage(_ context.Context, page, _ int) ([]domain.CatalogEntry, int, error) {
	if f.failAt == page {
		return nil, 0, errors.New("upstream down")
	}
	if page-1 >= len(f.catalog) {
		return nil, f.total, nil
	}
	return f.catalog[page-1], f.total, nil
}

func (f *pageSourceFake) TaxonomyPage(_ context.Context, vocabulary domain.Vocabulary, page, _ int) ([]domain.TaxonomyTerm, error) {
	if page > 1 {
		return nil, nil
	}
	return f.terms[vocabulary], nil
}

type sinkFake struct {
	summary domain.RunSummary
	records []domain.ClassifiedRecord
	err     error
	calls   int
}

func (f *sinkFake) WriteReport(_ context.Context, summary domain.RunSummary, records []domain.ClassifiedRecord) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.summary = summary
	f.records = records
	return nil
}

type archiveFake struct {
	mu    sync.Mutex
	saved map[string]string
}

func (f *archiveFake) Save(_ context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[key] = string(b)
	return nil
}

func (f *archiveFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type queueFake struct {
	published []domain.ChunkEnvelope
	err       error
}

func (f *queueFake) PublishChunk(_ context.Context, envelope domain.ChunkEnvelope) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, envelope)
	return nil
}

func (f *queueFake) SubscribeChunks(context.Context, func(context.Context, domain.ChunkEnvelope) error) error {
	return nil
}

type observerFake struct {
	stages map[string]int
	chunks int
	runs   int
}

func (f *observerFake) ObserveStage(stage string, items int, err error) {
	if f.stages == nil {
		f.stages = make(map[string]int)
	}
	if err == nil {
		f.stages[stage] = items
	}
}

func (f *observerFake) ObserveChunk(int, int, int) { f.chunks++ }

func (f *observerFake) ObserveRun(domain.RunSummary, time.Duration) { f.runs++ }

// corruptingChannel drops the last delimiter of every chunk.
type corruptingChannel struct{}

func (corruptingChannel) Transit(_ context.Context, chunk domain.Chunk) (string, error) {
	i := strings.LastIndex(chunk.Text, domain.Delimiter)
	return chunk.Text[:i] + chunk.Text[i+1:], nil
}

func scenarioSource() *pageSourceFake {
	return &pageSourceFake{
		total: 3,
		terms: map[domain.Vocabulary][]domain.TaxonomyTerm{
			domain.VocabularyStatus: {{ID: 1, Slug: "accreditation_with_commendation"}},
			domain.VocabularyType:   {{ID: 10, Slug: "state_accredited_provider"}},
			domain.VocabularyFormat: {{ID: 20, Slug: "live_course"}},
			domain.VocabularyJoint:  {{ID: 30, Slug: "yes"}},
		},
		catalog: [][]domain.CatalogEntry{
			{
				{
					ID:    101,
					Title: "Acme Med Society",
					Meta:  map[string]any{"activities": "150", "city": "Boston", "state": "MA", "country": "USA"},
					Terms: map[domain.Vocabulary][]int{domain.VocabularyStatus: {1}, domain.VocabularyFormat: {20}},
				},
				{
					ID:    102,
					Title: "Rural Clinic",
					Meta:  map[string]any{"activities": "5", "city": "Ames", "state": "IA", "country": "USA"},
					Terms: map[domain.Vocabulary][]int{domain.VocabularyType: {10}},
				},
			},
			{
				{
					ID:    103,
					Title: "Global Psychiatry Institute",
					Meta:  map[string]any{"activities": float64(30), "city": "Toronto\nEast", "country": "CAN"},
					Terms: map[domain.Vocabulary][]int{domain.VocabularyJoint: {30}},
				},
			},
		},
	}
}

func newScenarioPipeline(source *pageSourceFake, maxChunkChars int, transit interface {
	Transit(context.Context, domain.Chunk) (string, error)
}, sink *sinkFake, archive *archiveFake, observer *observerFake) *PipelineUseCase {
	rules := config.DefaultRules()
	reporter := NewReportUseCase(classify.NewEngine(rules.Classification), observer, sink)
	uc := NewPipelineUseCase(
		taxonomy.NewResolver(source, 100, 0),
		catalog.NewFetcher(source, 2, 0),
		encoding.NewEncoder(rules.Encoding),
		chunking.NewSplitter(maxChunkChars),
		transit,
		nil,
		archive,
		reporter,
		observer,
	)
	uc.newRunID = func() string { return "run-1" }
	return uc
}

func TestPipelineEndToEndScenario(t *testing.T) {
	for _, tc := range []struct {
		name    string
		transit interface {
			Transit(context.Context, domain.Chunk) (string, error)
		}
		maxChunkChars int
	}{
		{name: "lossy single chunk", transit: channel.NewLossy(100000), maxChunkChars: 90000},
		{name: "lossy chunk per record", transit: channel.NewLossy(100000), maxChunkChars: 120},
		{name: "direct", transit: channel.NewDirect(), maxChunkChars: 90000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sink := &sinkFake{}
			archive := &archiveFake{}
			observer := &observerFake{}
			uc := newScenarioPipeline(scenarioSource(), tc.maxChunkChars, tc.transit, sink, archive, observer)

			summary, err := uc.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if summary.RunID != "run-1" || summary.Total != 3 {
				t.Fatalf("unexpected summary %+v", summary)
			}
			if len(sink.records) != 3 {
				t.Fatalf("expected 3 classified records, got %d", len(sink.records))
			}

			byName := make(map[string]domain.ClassifiedRecord)
			for _, rec := range sink.records {
				byName[rec.Name()] = rec
			}

			society := byName["Acme Med Society"]
			if society.Tier != domain.Tier1 || !society.Commendation || !society.HighVolume {
				t.Fatalf("unexpected society classification %+v", society)
			}
			if society.Record[domain.FieldFormats] != "Live Course" {
				t.Fatalf("unexpected formats %q", society.Record[domain.FieldFormats])
			}

			clinic := byName["Rural Clinic"]
			if clinic.Tier != domain.Tier3 || clinic.Record[domain.FieldTypeCode] != "S" {
				t.Fatalf("unexpected clinic classification %+v", clinic)
			}

			institute := byName["Global Psychiatry Institute"]
			if institute.Tier != domain.Tier2 || !institute.Relevant || !institute.CrossBorder {
				t.Fatalf("unexpected institute classification %+v", institute)
			}
			if diff := cmp.Diff([]string{"Psychiatry"}, institute.Categories); diff != "" {
				t.Fatalf("categories mismatch (-want +got):\n%s", diff)
			}
			if institute.Record[domain.FieldCity] != "Toronto East" || institute.Record[domain.FieldJoint] != "Y" {
				t.Fatalf("unexpected institute record %v", institute.Record)
			}

			if len(archive.saved) != summary.Chunks {
				t.Fatalf("expected %d archived chunks, got %d", summary.Chunks, len(archive.saved))
			}
			if _, ok := archive.saved["run-1/chunk_0000.txt"]; !ok {
				t.Fatalf("expected first chunk archived, got keys %v", archive.saved)
			}
			if observer.chunks != summary.Chunks || observer.runs != 1 || observer.stages[StageFetch] != 3 {
				t.Fatalf("unexpected observations %+v", observer)
			}
		})
	}
}

func TestPipelineRecordsSurviveTransitUnchanged(t *testing.T) {
	source := scenarioSource()
	rules := config.DefaultRules()
	encoder := encoding.NewEncoder(rules.Encoding)

	maps, err := taxonomy.NewResolver(source, 100, 0).ResolveAll(context.Background())
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	var want []domain.EncodedRecord
	for _, page := range source.catalog {
		want = append(want, encoder.EncodeAll(page, maps)...)
	}

	sink := &sinkFake{}
	uc := newScenarioPipeline(source, 150, channel.NewLossy(200), sink, nil, nil)
	if _, err := uc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := make([]domain.EncodedRecord, 0, len(sink.records))
	for _, rec := range sink.records {
		got = append(got, rec.Record)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineStopsOnEmptyPageBeforeTotal(t *testing.T) {
	source := scenarioSource()
	source.total = 10
	sink := &sinkFake{}
	uc := newScenarioPipeline(source, 90000, channel.NewLossy(100000), sink, nil, nil)

	summary, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Total != 3 {
		t.Fatalf("expected records from pages 1-2, got %d", summary.Total)
	}
}

func TestPipelineAbortsWhenFirstPageFails(t *testing.T) {
	source := scenarioSource()
	source.failAt = 1
	sink := &sinkFake{}
	uc := newScenarioPipeline(source, 90000, channel.NewLossy(100000), sink, nil, nil)

	_, err := uc.Run(context.Background())
	if !domain.IsKind(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if sink.calls != 0 {
		t.Fatalf("no partial report may be written")
	}
}

func TestPipelineSurfacesMalformedChunk(t *testing.T) {
	sink := &sinkFake{}
	uc := newScenarioPipeline(scenarioSource(), 90000, corruptingChannel{}, sink, nil, nil)

	_, err := uc.Run(context.Background())
	var malformed *domain.MalformedChunkError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedChunkError, got %v", err)
	}
	if malformed.Index != 0 || malformed.Tokens != 3*domain.FieldCount-1 {
		t.Fatalf("unexpected diagnostics %+v", malformed)
	}
	if sink.calls != 0 {
		t.Fatalf("no report may be written after a malformed chunk")
	}
}

func TestPipelineReportFailureIsReturned(t *testing.T) {
	sink := &sinkFake{err: errors.New("disk full")}
	uc := newScenarioPipeline(scenarioSource(), 90000, channel.NewDirect(), sink, nil, nil)

	if _, err := uc.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestPipelinePublishesChunksInOrder(t *testing.T) {
	rules := config.DefaultRules()
	source := scenarioSource()
	queue := &queueFake{}
	sink := &sinkFake{}
	uc := NewPipelineUseCase(
		taxonomy.NewResolver(source, 100, 0),
		catalog.NewFetcher(source, 2, 0),
		encoding.NewEncoder(rules.Encoding),
		chunking.NewSplitter(120),
		nil,
		queue,
		nil,
		NewReportUseCase(classify.NewEngine(rules.Classification), nil, sink),
		nil,
	)
	uc.newRunID = func() string { return "run-9" }

	summary, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Chunks != len(queue.published) || summary.Chunks < 2 {
		t.Fatalf("expected every chunk published, got %d of %d", len(queue.published), summary.Chunks)
	}
	for i, env := range queue.published {
		if env.RunID != "run-9" || env.Index != i || env.Total != summary.Chunks {
			t.Fatalf("unexpected envelope %d: %+v", i, env)
		}
	}
	if sink.calls != 0 {
		t.Fatalf("publishing runs leave reporting to the worker")
	}
}

func TestPipelinePublishFailure(t *testing.T) {
	rules := config.DefaultRules()
	source := scenarioSource()
	uc := NewPipelineUseCase(
		taxonomy.NewResolver(source, 100, 0),
		catalog.NewFetcher(source, 2, 0),
		encoding.NewEncoder(rules.Encoding),
		chunking.NewSplitter(90000),
		nil,
		&queueFake{err: domain.WrapError(domain.ErrTemporary, "nats.publish", fmt.Errorf("no servers"))},
		nil,
		NewReportUseCase(classify.NewEngine(rules.Classification), nil),
		nil,
	)
	_, err := uc.Run(context.Background())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
