package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/core/keywords"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Scorer modes.
const (
	ScorerHeuristic = "heuristic"
	ScorerLLM       = "llm"
)

const (
	maxThreshold = 100
	appEnvLocal  = "local"
)

type Config struct {
	AppEnv         string `env:"APP_ENV" envDefault:"local"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	HealthPort     int    `env:"HEALTH_PORT" envDefault:"8080"`
	UserAgent      string `env:"HTTP_USER_AGENT" envDefault:"rss-pipeline/1.0 (+https://github.com/dealfanatics/rss-pipeline)"`
	SourcesFile    string `env:"SOURCES_FILE"` // Optional YAML file synced into the sources store at startup

	Database DatabaseConfig
	Scoring  ScoringConfig
	Dedup    DedupConfig
	Poller   PollerConfig
	Queue    QueueConfig
	Consumer ConsumerConfig
	Keywords KeywordConfig
	LLM      LLMConfig
	Article  ArticleConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyLegacyAliases(cfg)

	return cfg, nil
}

// IsLocal reports whether the process runs on a developer machine.
func (c *Config) IsLocal() bool {
	return c.AppEnv == appEnvLocal
}

// Validate checks settings every mode depends on. Credentials for the LLM and
// keyword services are checked by their clients when a mode needs them.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case BackendPostgres:
		if c.Database.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("POSTGRES_DSN is required for the %s backend", BackendPostgres))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	switch c.Scoring.Mode {
	case ScorerHeuristic:
	case ScorerLLM:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("LLM_API_KEY is required when SCORER_MODE=%s", ScorerLLM))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SCORER_MODE %q", c.Scoring.Mode))
	}

	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > maxThreshold {
		errs = append(errs, fmt.Errorf("RELEVANCE_THRESHOLD %d out of range 0..%d", c.Scoring.Threshold, maxThreshold))
	}

	if c.Scoring.PriorityThreshold < 0 || c.Scoring.PriorityThreshold > maxThreshold {
		errs = append(errs, fmt.Errorf("PRIORITY_THRESHOLD %d out of range 0..%d", c.Scoring.PriorityThreshold, maxThreshold))
	}

	if c.Queue.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_BATCH_SIZE must be positive, got %d", c.Queue.BatchSize))
	}

	if c.Queue.MaxReceiveCount <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_MAX_RECEIVE_COUNT must be positive, got %d", c.Queue.MaxReceiveCount))
	}

	if c.Queue.VisibilityTimeout <= c.Consumer.BatchTimeout {
		errs = append(errs, fmt.Errorf("QUEUE_VISIBILITY_TIMEOUT (%s) must exceed CONSUMER_BATCH_TIMEOUT (%s)",
			c.Queue.VisibilityTimeout, c.Consumer.BatchTimeout))
	}

	if c.Dedup.Retention < 0 {
		errs = append(errs, fmt.Errorf("DEDUP_RETENTION must not be negative, got %s", c.Dedup.Retention))
	}

	if c.Poller.Interval <= 0 || c.Keywords.ScanInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL and KEYWORD_SCAN_INTERVAL must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errors.ErrConfiguration, errors.Join(errs...))
	}

	return nil
}

// KeywordBatchSize returns the configured batch size clamped to the range the
// keyword service accepts.
func (c *Config) KeywordBatchSize() int {
	return keywords.ClampBatchSize(c.Keywords.BatchSize)
}

// applyLegacyAliases maps variable names used by earlier deployments.
func applyLegacyAliases(cfg *Config) {
	if !hasEnv("LLM_MODEL") {
		setStringFromEnv("BEDROCK_MODEL_ID", &cfg.LLM.Model)
	}

	if !hasEnv("KEYWORD_RECORDS_PER_RUN") {
		setIntFromEnv("RECORDS_PER_RUN", &cfg.Keywords.RecordsPerRun)
	}

	if !hasEnv("QUEUE_NAME") {
		setStringFromEnv("ARTICLES_QUEUE", &cfg.Queue.Name)
	}

	if !hasEnv("CONSUMER_BATCH_TIMEOUT") {
		setDurationFromEnv("CONSUMER_DEADLINE", &cfg.Consumer.BatchTimeout)
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	*target = val
}

func setIntFromEnv(key string, target *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}

func setDurationFromEnv(key string, target *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}
