package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	stageTotal    *prometheus.CounterVec
	stageItems    *prometheus.GaugeVec
	chunksTotal   prometheus.Counter
	chunkChars    prometheus.Histogram
	chunkRecords  prometheus.Histogram
	runDuration   prometheus.Histogram
	runsTotal     prometheus.Counter
	providersTier *prometheus.GaugeVec
	lastRunTime   prometheus.Gauge

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provider_intel",
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Completed pipeline stages by status.",
		},
		[]string{"service", "stage", "status"},
	)
	stageItems := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "provider_intel",
			Subsystem: "pipeline",
			Name:      "stage_items",
			Help:      "Items produced by the last run of each stage.",
		},
		[]string{"service", "stage"},
	)
	chunksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "provider_intel",
			Subsystem:   "transport",
			Name:        "chunks_total",
			Help:        "Chunks reassembled.",
			ConstLabels: serviceLabel,
		},
	)
	chunkChars := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "provider_intel",
			Subsystem:   "transport",
			Name:        "chunk_chars",
			Help:        "Characters per chunk as received from the channel.",
			Buckets:     []float64{1000, 5000, 10000, 25000, 50000, 75000, 90000, 100000},
			ConstLabels: serviceLabel,
		},
	)
	chunkRecords := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "provider_intel",
			Subsystem:   "transport",
			Name:        "chunk_records",
			Help:        "Records per reassembled chunk.",
			Buckets:     []float64{1, 10, 50, 100, 250, 500, 1000},
			ConstLabels: serviceLabel,
		},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "provider_intel",
			Subsystem:   "pipeline",
			Name:        "run_duration_seconds",
			Help:        "Full run duration in seconds.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			ConstLabels: serviceLabel,
		},
	)
	runsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "provider_intel",
			Subsystem:   "pipeline",
			Name:        "runs_total",
			Help:        "Completed pipeline runs.",
			ConstLabels: serviceLabel,
		},
	)
	providersTier := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "provider_intel",
			Subsystem: "report",
			Name:      "providers",
			Help:      "Providers in the last run by priority tier.",
		},
		[]string{"service", "tier"},
	)
	lastRunTime := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "provider_intel",
			Subsystem:   "pipeline",
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time of the last completed run.",
			ConstLabels: serviceLabel,
		},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provider_intel",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provider_intel",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	registry.MustRegister(
		stageTotal,
		stageItems,
		chunksTotal,
		chunkChars,
		chunkRecords,
		runDuration,
		runsTotal,
		providersTier,
		lastRunTime,
		requestTotal,
		requestDuration,
	)

	return &PipelineMetrics{
		registry:        registry,
		service:         service,
		stageTotal:      stageTotal,
		stageItems:      stageItems,
		chunksTotal:     chunksTotal,
		chunkChars:      chunkChars,
		chunkRecords:    chunkRecords,
		runDuration:     runDuration,
		runsTotal:       runsTotal,
		providersTier:   providersTier,
		lastRunTime:     lastRunTime,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *PipelineMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *PipelineMetrics) ObserveStage(stage string, items int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.stageTotal.WithLabelValues(m.service, stage, status).Inc()
	if err == nil {
		m.stageItems.WithLabelValues(m.service, stage).Set(float64(items))
	}
}

func (m *PipelineMetrics) ObserveChunk(_, chars, records int) {
	m.chunksTotal.Inc()
	m.chunkChars.Observe(float64(chars))
	m.chunkRecords.Observe(float64(records))
}

func (m *PipelineMetrics) ObserveRun(summary domain.RunSummary, duration time.Duration) {
	m.runsTotal.Inc()
	m.runDuration.Observe(duration.Seconds())
	for _, tier := range []domain.Tier{domain.Tier1, domain.Tier2, domain.Tier3} {
		m.providersTier.WithLabelValues(m.service, strconv.Itoa(int(tier))).Set(float64(summary.TierCounts[tier]))
	}
	m.lastRunTime.SetToCurrentTime()
}
