package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("PAGE_SIZE", "")
	t.Setenv("MAX_CHUNK_CHARS", "")
	t.Setenv("TRANSIT_CHANNEL", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg := Load()
	if cfg.PageSize != 100 {
		t.Fatalf("expected default page size 100, got %d", cfg.PageSize)
	}
	if cfg.MaxChunkChars != 90000 {
		t.Fatalf("expected default max chunk chars 90000, got %d", cfg.MaxChunkChars)
	}
	if cfg.TransitChannel != ChannelLossy {
		t.Fatalf("expected default transit channel lossy, got %q", cfg.TransitChannel)
	}
	if cfg.PostgresDSN != "" {
		t.Fatalf("expected postgres disabled by default, got %q", cfg.PostgresDSN)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PAGE_SIZE", "50")
	t.Setenv("MAX_CHUNK_CHARS", "4000")
	t.Setenv("TRANSIT_CHANNEL", "NATS")
	t.Setenv("UPSTREAM_RATE_PER_SECOND", "1.5")
	t.Setenv("UPSTREAM_BREAKER_ENABLED", "false")

	cfg := Load()
	if cfg.PageSize != 50 {
		t.Fatalf("expected page size 50, got %d", cfg.PageSize)
	}
	if cfg.MaxChunkChars != 4000 {
		t.Fatalf("expected max chunk chars 4000, got %d", cfg.MaxChunkChars)
	}
	if cfg.TransitChannel != ChannelNATS {
		t.Fatalf("expected lower-cased channel nats, got %q", cfg.TransitChannel)
	}
	if cfg.UpstreamRatePerSecond != 1.5 {
		t.Fatalf("expected rate 1.5, got %v", cfg.UpstreamRatePerSecond)
	}
	if cfg.UpstreamBreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
}

func TestLoadFallsBackOnUnparsableNumbers(t *testing.T) {
	t.Setenv("PAGE_SIZE", "many")

	cfg := Load()
	if cfg.PageSize != 100 {
		t.Fatalf("expected fallback page size 100, got %d", cfg.PageSize)
	}
}

func TestValidateRejectsUnknownChannel(t *testing.T) {
	cfg := Load()
	cfg.TransitChannel = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown channel")
	}
}

func TestValidateRejectsChunkLargerThanChannel(t *testing.T) {
	cfg := Load()
	cfg.MaxChunkChars = 5000
	cfg.ChannelMaxChars = 4000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when chunks exceed the channel cap")
	}
}

func TestLoadRulesEmptyPathReturnsDefaults(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if rules.Classification.Tier1Activities != 100 || rules.Classification.Tier2Activities != 20 {
		t.Fatalf("unexpected default thresholds: %+v", rules.Classification)
	}
	if err := ValidateRules(rules); err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
}

func TestLoadRulesOverridesFromYAML(t *testing.T) {
	t.Setenv("HOME_COUNTRY", "CAN")
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
classification:
  home_country: ${HOME_COUNTRY}
  target_cities: [toronto]
  categories:
    - name: Cardiology
      keywords: [cardio, heart]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if rules.Classification.HomeCountry != "CAN" {
		t.Fatalf("expected expanded home country CAN, got %q", rules.Classification.HomeCountry)
	}
	if len(rules.Classification.TargetCities) != 1 || rules.Classification.TargetCities[0] != "toronto" {
		t.Fatalf("expected target cities override, got %v", rules.Classification.TargetCities)
	}
	if len(rules.Classification.Categories) != 1 || rules.Classification.Categories[0].Name != "Cardiology" {
		t.Fatalf("expected categories override, got %+v", rules.Classification.Categories)
	}
	if rules.Classification.Tier1Activities != 100 {
		t.Fatalf("expected untouched defaults to survive, got %d", rules.Classification.Tier1Activities)
	}
}

func TestLoadRulesRejectsInvalidGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
classification:
  org_types:
    - name: ""
      keywords: []
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "XML")
	cfg := Load()
	if cfg.LogFormat != "xml" {
		t.Fatalf("expected lower-cased log format, got %q", cfg.LogFormat)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown log format")
	}
}

func TestValidateRejectsNonPositiveRunTTL(t *testing.T) {
	for _, raw := range []string{"0", "-5"} {
		t.Setenv("WORKER_RUN_TTL_MINUTES", raw)
		cfg := Load()
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected validation error for WORKER_RUN_TTL_MINUTES=%s, got ttl %d", raw, cfg.WorkerRunTTL)
		}
	}
}
