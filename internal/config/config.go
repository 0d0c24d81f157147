package config

import (
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	ChannelLossy  = "lossy"
	ChannelDirect = "direct"
	ChannelNATS   = "nats"
)

type Config struct {
	LogLevel  string
	LogFormat string

	UpstreamBaseURL        string
	CatalogResource        string
	StatusResource         string
	TypeResource           string
	FormatResource         string
	JointResource          string
	PageSize               int
	MaxPages               int
	UpstreamTimeoutSeconds int
	UpstreamRatePerSecond  float64
	UpstreamBurst          int
	UpstreamRetryAttempts  int
	UpstreamBreakerEnabled bool
	UpstreamUserAgent      string

	TransitChannel  string
	MaxChunkChars   int
	ChannelMaxChars int

	NATSURL     string
	NATSSubject string

	PostgresDSN string

	ReportPath  string
	ArchivePath string
	RulesPath   string

	MetricsTextfile   string
	WorkerMetricsPort string
	WorkerRunTTL      int
}

func Load() Config {
	return Config{
		LogLevel:  mustEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(mustEnv("LOG_FORMAT", "json")),

		UpstreamBaseURL:        mustEnv("UPSTREAM_BASE_URL", "https://www.accme.org/wp-json/wp/v2"),
		CatalogResource:        mustEnv("CATALOG_RESOURCE", "cme-provider"),
		StatusResource:         mustEnv("STATUS_RESOURCE", "provider-status"),
		TypeResource:           mustEnv("TYPE_RESOURCE", "provider-type"),
		FormatResource:         mustEnv("FORMAT_RESOURCE", "activity-format"),
		JointResource:          mustEnv("JOINT_RESOURCE", "joint-providership"),
		PageSize:               mustEnvInt("PAGE_SIZE", 100),
		MaxPages:               mustEnvInt("MAX_PAGES", 10000),
		UpstreamTimeoutSeconds: mustEnvInt("UPSTREAM_TIMEOUT_SECONDS", 30),
		UpstreamRatePerSecond:  mustEnvFloat("UPSTREAM_RATE_PER_SECOND", 4),
		UpstreamBurst:          mustEnvInt("UPSTREAM_BURST", 2),
		UpstreamRetryAttempts:  mustEnvInt("UPSTREAM_RETRY_ATTEMPTS", 3),
		UpstreamBreakerEnabled: mustEnvBool("UPSTREAM_BREAKER_ENABLED", true),
		UpstreamUserAgent:      mustEnv("UPSTREAM_USER_AGENT", "provider-intel/1.0"),

		TransitChannel:  strings.ToLower(mustEnv("TRANSIT_CHANNEL", ChannelLossy)),
		MaxChunkChars:   mustEnvInt("MAX_CHUNK_CHARS", 90000),
		ChannelMaxChars: mustEnvInt("CHANNEL_MAX_CHARS", 100000),

		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "providers.chunks"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		ReportPath:  mustEnv("REPORT_PATH", "./data/accme_providers.xlsx"),
		ArchivePath: mustEnv("ARCHIVE_PATH", "./data/chunks"),
		RulesPath:   mustEnv("RULES_PATH", ""),

		MetricsTextfile:   mustEnv("METRICS_TEXTFILE", ""),
		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
		WorkerRunTTL:      mustEnvInt("WORKER_RUN_TTL_MINUTES", 60),
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.UpstreamBaseURL, validation.Required),
		validation.Field(&c.CatalogResource, validation.Required),
		validation.Field(&c.StatusResource, validation.Required),
		validation.Field(&c.TypeResource, validation.Required),
		validation.Field(&c.FormatResource, validation.Required),
		validation.Field(&c.JointResource, validation.Required),
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.MaxPages, validation.Required, validation.Min(1)),
		validation.Field(&c.TransitChannel, validation.Required, validation.In(ChannelLossy, ChannelDirect, ChannelNATS)),
		validation.Field(&c.MaxChunkChars, validation.Required, validation.Min(FieldFloorChars)),
		validation.Field(&c.ChannelMaxChars, validation.Required, validation.Min(c.MaxChunkChars)),
		validation.Field(&c.NATSURL, validation.When(c.TransitChannel == ChannelNATS, validation.Required)),
		validation.Field(&c.NATSSubject, validation.When(c.TransitChannel == ChannelNATS, validation.Required)),
		validation.Field(&c.ReportPath, validation.Required),
		validation.Field(&c.WorkerRunTTL, validation.Required, validation.Min(1)),
	)
}

// FieldFloorChars is the smallest chunk budget that can hold an all-empty record.
const FieldFloorChars = 16

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
