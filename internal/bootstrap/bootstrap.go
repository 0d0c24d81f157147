package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/provider-intel/internal/config"
	"github.com/kirillkom/provider-intel/internal/core/catalog"
	"github.com/kirillkom/provider-intel/internal/core/classify"
	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/core/encoding"
	"github.com/kirillkom/provider-intel/internal/core/ports"
	"github.com/kirillkom/provider-intel/internal/core/taxonomy"
	"github.com/kirillkom/provider-intel/internal/core/usecase"
	"github.com/kirillkom/provider-intel/internal/infrastructure/channel"
	"github.com/kirillkom/provider-intel/internal/infrastructure/chunking"
	"github.com/kirillkom/provider-intel/internal/infrastructure/pagesource/wpapi"
	"github.com/kirillkom/provider-intel/internal/infrastructure/queue/nats"
	"github.com/kirillkom/provider-intel/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/provider-intel/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/provider-intel/internal/infrastructure/resilience"
	"github.com/kirillkom/provider-intel/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/provider-intel/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Rules   domain.Rules
	Metrics *metrics.PipelineMetrics

	// Queue is set only when chunks travel over NATS.
	Queue    *nats.Queue
	Pipeline ports.PipelineRunner
	Consumer *usecase.ChunkConsumerUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	pipelineMetrics := metrics.NewPipelineMetrics(service)

	upstreamExecutor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.UpstreamRetryAttempts,
		RatePerSecond:    cfg.UpstreamRatePerSecond,
		RateBurst:        cfg.UpstreamBurst,
		BreakerEnabled:   cfg.UpstreamBreakerEnabled,
	})
	source := wpapi.New(cfg.UpstreamBaseURL, wpapi.Options{
		CatalogResource: cfg.CatalogResource,
		Resources: map[domain.Vocabulary]string{
			domain.VocabularyStatus: cfg.StatusResource,
			domain.VocabularyType:   cfg.TypeResource,
			domain.VocabularyFormat: cfg.FormatResource,
			domain.VocabularyJoint:  cfg.JointResource,
		},
		UserAgent: cfg.UpstreamUserAgent,
		Timeout:   time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
		Executor:  upstreamExecutor,
	})

	archive, err := localfs.New(cfg.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("init chunk archive: %w", err)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	sinks := []ports.ReportSink{xlsx.NewWriter(cfg.ReportPath)}
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		repo := postgres.NewProviderRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, repo)
	}

	var (
		queue   *nats.Queue
		transit ports.TransitChannel
	)
	switch cfg.TransitChannel {
	case config.ChannelNATS:
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.Config{BreakerEnabled: true}),
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init chunk queue: %w", err)
		}
		closers = append(closers, queue.Close)
	case config.ChannelDirect:
		transit = channel.NewDirect()
	default:
		transit = channel.NewLossy(cfg.ChannelMaxChars)
	}

	splitter := chunking.NewSplitter(cfg.MaxChunkChars)
	reporter := usecase.NewReportUseCase(classify.NewEngine(rules.Classification), pipelineMetrics, sinks...)

	var publisher ports.ChunkQueue
	if queue != nil {
		publisher = queue
	}
	pipeline := usecase.NewPipelineUseCase(
		taxonomy.NewResolver(source, cfg.PageSize, cfg.MaxPages),
		catalog.NewFetcher(source, cfg.PageSize, cfg.MaxPages),
		encoding.NewEncoder(rules.Encoding),
		splitter,
		transit,
		publisher,
		archive,
		reporter,
		pipelineMetrics,
	)
	consumer := usecase.NewChunkConsumerUseCase(splitter, archive, reporter, pipelineMetrics)

	return &App{
		Config:   cfg,
		Rules:    rules,
		Metrics:  pipelineMetrics,
		Queue:    queue,
		Pipeline: pipeline,
		Consumer: consumer,
		closeFn:  closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
