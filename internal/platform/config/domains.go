package config

import "time"

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string        `env:"POSTGRES_DSN"`
	MaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	MinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// ScoringConfig holds admission settings.
type ScoringConfig struct {
	Threshold         int    `env:"RELEVANCE_THRESHOLD" envDefault:"60"`
	PriorityThreshold int    `env:"PRIORITY_THRESHOLD" envDefault:"70"`
	Mode              string `env:"SCORER_MODE" envDefault:"heuristic"`
}

// DedupConfig holds URL normalization and retention settings.
type DedupConfig struct {
	Retention     time.Duration `env:"DEDUP_RETENTION" envDefault:"0s"` // Zero keeps keys forever
	StripParams   []string      `env:"DEDUP_STRIP_PARAMS" envSeparator:","`
	StripAllQuery bool          `env:"DEDUP_STRIP_ALL_QUERY" envDefault:"false"`
	StripWWW      bool          `env:"DEDUP_STRIP_WWW" envDefault:"false"`
}

// PollerConfig holds feed polling settings.
type PollerConfig struct {
	Interval           time.Duration `env:"POLL_INTERVAL" envDefault:"1h"`
	Timeout            time.Duration `env:"POLL_TIMEOUT" envDefault:"5m"`
	MaxItemsPerSource  int           `env:"POLL_MAX_ITEMS_PER_SOURCE" envDefault:"50"`
	Concurrency        int           `env:"POLL_CONCURRENCY" envDefault:"4"`
	FeedRequestTimeout time.Duration `env:"FEED_REQUEST_TIMEOUT" envDefault:"30s"`
}

// QueueConfig holds durable queue settings.
type QueueConfig struct {
	Name              string        `env:"QUEUE_NAME" envDefault:"articles"`
	BatchSize         int           `env:"QUEUE_BATCH_SIZE" envDefault:"5"`
	VisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" envDefault:"15m"`
	MaxReceiveCount   int           `env:"QUEUE_MAX_RECEIVE_COUNT" envDefault:"3"`
	WaitInterval      time.Duration `env:"QUEUE_WAIT_INTERVAL" envDefault:"10s"`
}

// ConsumerConfig holds batch consumer settings.
type ConsumerConfig struct {
	BatchTimeout time.Duration `env:"CONSUMER_BATCH_TIMEOUT" envDefault:"10m"`
	Concurrency  int           `env:"CONSUMER_CONCURRENCY" envDefault:"5"`
}

// KeywordConfig holds keyword-metrics scan settings.
type KeywordConfig struct {
	ScanInterval  time.Duration `env:"KEYWORD_SCAN_INTERVAL" envDefault:"2h"`
	ScanTimeout   time.Duration `env:"KEYWORD_SCAN_TIMEOUT" envDefault:"10m"`
	RecordsPerRun int           `env:"KEYWORD_RECORDS_PER_RUN" envDefault:"10"`
	BatchSize     int           `env:"KEYWORD_BATCH_SIZE" envDefault:"15"`
	RelatedLimit  int           `env:"KEYWORD_RELATED_LIMIT" envDefault:"5"`
	APIURL        string        `env:"KEYWORD_API_URL"`
	APIToken      string        `env:"KEYWORD_API_TOKEN"`
	RPS           float64       `env:"KEYWORD_API_RPS" envDefault:"1"`
	Timeout       time.Duration `env:"KEYWORD_API_TIMEOUT" envDefault:"30s"`
}

// LLMConfig holds extraction and judge service settings.
type LLMConfig struct {
	APIKey  string        `env:"LLM_API_KEY"`
	BaseURL string        `env:"LLM_BASE_URL"`
	Model   string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	RPS     float64       `env:"LLM_RPS" envDefault:"1"`
	Timeout time.Duration `env:"LLM_TIMEOUT" envDefault:"2m"`
}

// ArticleConfig holds article fetch settings.
type ArticleConfig struct {
	FetchTimeout  time.Duration `env:"ARTICLE_FETCH_TIMEOUT" envDefault:"30s"`
	FetchRPS      float64       `env:"ARTICLE_FETCH_RPS" envDefault:"2"`
	TextLimit     int           `env:"ARTICLE_TEXT_LIMIT" envDefault:"90000"`
	MinText       int           `env:"ARTICLE_MIN_TEXT" envDefault:"100"`
	RespectRobots bool          `env:"ARTICLE_RESPECT_ROBOTS" envDefault:"true"`
}
