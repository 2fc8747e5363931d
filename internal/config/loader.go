package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "mock"},
	"embeddings": {"openai", "ollama", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	if len(cfg.Providers.Fallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.fallbacks set without a primary providers.llm"))
	}

	// Story tuning ranges.
	if cfg.Story.RetrievalLimit < 0 {
		errs = append(errs, fmt.Errorf("story.retrieval_limit %d must not be negative", cfg.Story.RetrievalLimit))
	}
	if cfg.Story.SummaryWindow < 0 {
		errs = append(errs, fmt.Errorf("story.summary_window %d must not be negative", cfg.Story.SummaryWindow))
	}
	if cfg.Story.MatchThreshold != 0 {
		if cfg.Story.MatchThreshold <= 0 || cfg.Story.MatchThreshold > 1 {
			errs = append(errs, fmt.Errorf("story.match_threshold %.2f is out of range (0, 1]", cfg.Story.MatchThreshold))
		}
	}

	if cfg.Graph.MaxLiveNodes < 0 {
		errs = append(errs, fmt.Errorf("graph.max_live_nodes %d must not be negative", cfg.Graph.MaxLiveNodes))
	}

	// Embeddings ↔ memory dimensions.
	if cfg.Memory.PostgresDSN != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("memory.embedding_dimensions is required when memory.postgres_dsn is set"))
	}
	if cfg.Memory.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		slog.Warn("memory.postgres_dsn is set but providers.embeddings is not configured; retrieval will use mock vectors")
	}
	if cfg.Memory.MaxMemories < 0 {
		errs = append(errs, fmt.Errorf("memory.max_memories %d must not be negative", cfg.Memory.MaxMemories))
	}

	// Resilience durations.
	if _, err := cfg.Resilience.backoff(); err != nil {
		errs = append(errs, fmt.Errorf("resilience.retry_backoff: %w", err))
	}
	if _, err := cfg.Resilience.cooldown(); err != nil {
		errs = append(errs, fmt.Errorf("resilience.breaker_cooldown: %w", err))
	}
	if cfg.Resilience.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("resilience.retry_attempts %d must not be negative", cfg.Resilience.RetryAttempts))
	}
	if cfg.Resilience.BreakerTrip < 0 {
		errs = append(errs, fmt.Errorf("resilience.breaker_trip %d must not be negative", cfg.Resilience.BreakerTrip))
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsAddr == "" {
		slog.Warn("telemetry.enabled is set without telemetry.metrics_addr; metrics will be collected but not exposed")
	}

	return errors.Join(errs...)
}

// RetryBackoffDuration returns the parsed retry backoff, or 0 when unset.
// [Validate] reports parse failures; this accessor ignores them.
func (r ResilienceConfig) RetryBackoffDuration() time.Duration {
	d, _ := r.backoff()
	return d
}

// BreakerCooldownDuration returns the parsed breaker cooldown, or 0 when
// unset. [Validate] reports parse failures; this accessor ignores them.
func (r ResilienceConfig) BreakerCooldownDuration() time.Duration {
	d, _ := r.cooldown()
	return d
}

func (r ResilienceConfig) backoff() (time.Duration, error) {
	if r.RetryBackoff == "" {
		return 0, nil
	}
	return time.ParseDuration(r.RetryBackoff)
}

func (r ResilienceConfig) cooldown() (time.Duration, error) {
	if r.BreakerCooldown == "" {
		return 0, nil
	}
	return time.ParseDuration(r.BreakerCooldown)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
