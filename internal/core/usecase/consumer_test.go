package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/provider-intel/internal/config"
	"github.com/kirillkom/provider-intel/internal/core/classify"
	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/infrastructure/chunking"
)

func consumerRecords() []domain.EncodedRecord {
	out := make([]domain.EncodedRecord, 0, 5)
	for i, name := range []string{"Alpha Psychiatry Group", "Beta Hospital", "Gamma Society", "Delta Clinic", "Epsilon Institute"} {
		var rec domain.EncodedRecord
		rec[domain.FieldName] = name
		rec[domain.FieldState] = "TX"
		rec[domain.FieldActivities] = "12"
		rec[domain.FieldSourceID] = string(rune('1' + i))
		out = append(out, rec)
	}
	return out
}

func newConsumer(t *testing.T, sink *sinkFake) (*ChunkConsumerUseCase, []domain.Chunk) {
	t.Helper()
	splitter := chunking.NewSplitter(60)
	chunks, err := splitter.Split(consumerRecords())
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	reporter := NewReportUseCase(classify.NewEngine(config.DefaultRules().Classification), nil, sink)
	return NewChunkConsumerUseCase(splitter, &archiveFake{}, reporter, nil), chunks
}

func degrade(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ").Replace(s)
}

func TestConsumerCompletesRunOutOfOrder(t *testing.T) {
	sink := &sinkFake{}
	consumer, chunks := newConsumer(t, sink)

	for i := len(chunks) - 1; i >= 0; i-- {
		err := consumer.HandleChunk(context.Background(), domain.ChunkEnvelope{
			RunID: "run-1",
			Index: i,
			Total: len(chunks),
			Text:  degrade(chunks[i].Text),
		})
		if err != nil {
			t.Fatalf("HandleChunk(%d) error = %v", i, err)
		}
		if i > 0 && sink.calls != 0 {
			t.Fatalf("run must not complete before every chunk arrived")
		}
	}

	if sink.calls != 1 {
		t.Fatalf("expected one report, got %d", sink.calls)
	}
	got := make([]domain.EncodedRecord, 0, len(sink.records))
	for _, rec := range sink.records {
		got = append(got, rec.Record)
	}
	if diff := cmp.Diff(consumerRecords(), got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if sink.summary.Chunks != len(chunks) || sink.summary.RunID != "run-1" {
		t.Fatalf("unexpected summary %+v", sink.summary)
	}
	if consumer.PendingRuns() != 0 {
		t.Fatalf("completed run must be released")
	}
}

func TestConsumerIgnoresIdenticalRedelivery(t *testing.T) {
	sink := &sinkFake{}
	consumer, chunks := newConsumer(t, sink)
	env := domain.ChunkEnvelope{RunID: "run-2", Index: 0, Total: len(chunks), Text: chunks[0].Text}

	for range 2 {
		if err := consumer.HandleChunk(context.Background(), env); err != nil {
			t.Fatalf("HandleChunk() error = %v", err)
		}
	}
	env.Text = "~different"
	if err := consumer.HandleChunk(context.Background(), env); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for conflicting redelivery, got %v", err)
	}
}

func TestConsumerRejectsBadEnvelopes(t *testing.T) {
	consumer, _ := newConsumer(t, &sinkFake{})
	for _, env := range []domain.ChunkEnvelope{
		{RunID: "", Index: 0, Total: 1},
		{RunID: "r", Index: 1, Total: 1},
		{RunID: "r", Index: 0, Total: 0},
	} {
		if err := consumer.HandleChunk(context.Background(), env); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("envelope %+v: expected ErrInvalidInput, got %v", env, err)
		}
	}

	if err := consumer.HandleChunk(context.Background(), domain.ChunkEnvelope{RunID: "r", Index: 0, Total: 3}); err != nil {
		t.Fatalf("HandleChunk() error = %v", err)
	}
	err := consumer.HandleChunk(context.Background(), domain.ChunkEnvelope{RunID: "r", Index: 1, Total: 4})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected total mismatch to be rejected, got %v", err)
	}
}

func TestConsumerReportsMalformedChunk(t *testing.T) {
	sink := &sinkFake{}
	consumer, _ := newConsumer(t, sink)

	err := consumer.HandleChunk(context.Background(), domain.ChunkEnvelope{RunID: "run-3", Index: 0, Total: 1, Text: "~a~b~c"})
	if !domain.IsKind(err, domain.ErrMalformedChunk) {
		t.Fatalf("expected ErrMalformedChunk, got %v", err)
	}
	if sink.calls != 0 {
		t.Fatalf("no report may be written")
	}
}

func TestConsumerEvictsStaleRuns(t *testing.T) {
	consumer, chunks := newConsumer(t, &sinkFake{})
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	consumer.now = func() time.Time { return now }

	if err := consumer.HandleChunk(context.Background(), domain.ChunkEnvelope{RunID: "old", Index: 0, Total: len(chunks), Text: chunks[0].Text}); err != nil {
		t.Fatalf("HandleChunk() error = %v", err)
	}
	now = now.Add(2 * time.Hour)
	if err := consumer.HandleChunk(context.Background(), domain.ChunkEnvelope{RunID: "new", Index: 0, Total: len(chunks), Text: chunks[0].Text}); err != nil {
		t.Fatalf("HandleChunk() error = %v", err)
	}

	evicted := consumer.EvictStale(time.Hour)
	if diff := cmp.Diff([]string{"old"}, evicted); diff != "" {
		t.Fatalf("evicted mismatch (-want +got):\n%s", diff)
	}
	if consumer.PendingRuns() != 1 {
		t.Fatalf("expected one pending run, got %d", consumer.PendingRuns())
	}
}
