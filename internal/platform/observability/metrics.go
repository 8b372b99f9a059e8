package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission results for ItemsAdmitted.
const (
	AdmissionQueued    = "queued"
	AdmissionDuplicate = "duplicate"
	AdmissionRejected  = "rejected"
	AdmissionFailed    = "failed"
	AdmissionInvalid   = "invalid"
)

var (
	ItemsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_items_fetched_total",
		Help: "Candidate items fetched from sources",
	}, []string{"source"})

	ItemsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_items_admission_total",
		Help: "Admission results for fetched items",
	}, []string{"result"})

	SourceFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_source_fetch_failures_total",
		Help: "Failed source fetches",
	}, []string{"source"})

	PollCycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_poll_cycle_duration_seconds",
		Help:    "Duration of a poll cycle",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	PollCycleSourcesFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_poll_cycle_sources_failed",
		Help: "Sources that failed in the most recent poll cycle",
	})

	RelevanceScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_relevance_score",
		Help:    "Relevance scores of judged items",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	ConsumerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_consumer_outcomes_total",
		Help: "Per-message outcomes reported by the batch consumer",
	}, []string{"outcome", "kind"})

	ConsumerReceiveCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_consumer_receive_count",
		Help:    "Receive count of messages at delivery",
		Buckets: []float64{1, 2, 3, 4, 5, 10},
	})

	ConsumerBatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_consumer_batch_duration_seconds",
		Help:    "Duration in seconds to process a queue batch",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	DeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_dead_lettered_total",
		Help: "Messages moved to the dead-letter queue",
	}, []string{"reason"})

	ArticleFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_article_fetches_total",
		Help: "Article content fetches by result",
	}, []string{"status"})

	ExtractionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_extraction_requests_total",
		Help: "Structured-extraction calls by result",
	}, []string{"status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "task"})

	KeywordScanRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_keyword_scan_records_total",
		Help: "Records handled by the keyword-enrichment scan",
	}, []string{"status"})

	KeywordMetricCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_keyword_metric_calls_total",
		Help: "Keyword-metrics service calls by result",
	}, []string{"call", "status"})

	ConfigurationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_configuration_errors_total",
		Help: "Configuration errors surfaced to operators",
	}, []string{"component"})
)
