package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const (
	headerRunID = "Provider-Run-Id"
	headerIndex = "Provider-Chunk-Index"
	headerTotal = "Provider-Chunk-Total"
)

type Queue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	group := options.QueueGroup
	if group == "" {
		group = "provider-workers"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("provider-intel"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishChunk(ctx context.Context, envelope domain.ChunkEnvelope) error {
	msg := encodeEnvelope(q.subject, envelope)
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish chunk %d of run %s: %w", envelope.Index, envelope.RunID, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, opPublish, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(opPublish, err)
	}
	return nil
}

// Flush blocks until every published chunk reached the server.
func (q *Queue) Flush(ctx context.Context) error {
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := q.conn.FlushTimeout(timeout); err != nil {
		return wrapTemporaryIfNeeded(opFlush, err)
	}
	return nil
}

func (q *Queue) SubscribeChunks(ctx context.Context, handler func(context.Context, domain.ChunkEnvelope) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		envelope, err := decodeEnvelope(msg)
		if err != nil {
			slog.Error("chunk_envelope_invalid", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, envelope); err != nil {
			slog.Error("chunk_handler_failed",
				"run_id", envelope.RunID,
				"chunk_index", envelope.Index,
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEnvelope(subject string, envelope domain.ChunkEnvelope) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Header.Set(headerRunID, envelope.RunID)
	msg.Header.Set(headerIndex, strconv.Itoa(envelope.Index))
	msg.Header.Set(headerTotal, strconv.Itoa(envelope.Total))
	msg.Data = []byte(envelope.Text)
	return msg
}

func decodeEnvelope(msg *nats.Msg) (domain.ChunkEnvelope, error) {
	if msg.Header == nil {
		return domain.ChunkEnvelope{}, domain.WrapError(domain.ErrInvalidInput, "decode envelope", errors.New("missing headers"))
	}
	runID := msg.Header.Get(headerRunID)
	if runID == "" {
		return domain.ChunkEnvelope{}, domain.WrapError(domain.ErrInvalidInput, "decode envelope", errors.New("missing run id"))
	}
	index, err := strconv.Atoi(msg.Header.Get(headerIndex))
	if err != nil {
		return domain.ChunkEnvelope{}, domain.WrapError(domain.ErrInvalidInput, "decode envelope", fmt.Errorf("chunk index: %w", err))
	}
	total, err := strconv.Atoi(msg.Header.Get(headerTotal))
	if err != nil {
		return domain.ChunkEnvelope{}, domain.WrapError(domain.ErrInvalidInput, "decode envelope", fmt.Errorf("chunk total: %w", err))
	}
	if total <= 0 || index < 0 || index >= total {
		return domain.ChunkEnvelope{}, domain.WrapError(domain.ErrInvalidInput, "decode envelope",
			fmt.Errorf("chunk index %d out of range for total %d", index, total))
	}
	return domain.ChunkEnvelope{
		RunID: runID,
		Index: index,
		Total: total,
		Text:  string(msg.Data),
	}, nil
}
