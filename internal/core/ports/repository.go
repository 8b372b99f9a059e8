// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing pipeline stages to remain independent of storage and network concerns.
package ports

import (
	"context"
	"time"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
)

// SourceRepository provides the poller's view of configured sources.
type SourceRepository interface {
	ListActiveSources(ctx context.Context) ([]domain.Source, error)
	RecordFetchStatus(ctx context.Context, status domain.SourceFetchStatus) error
}

// SourceAdmin is the operator view of sources.
type SourceAdmin interface {
	SourceRepository
	ListSources(ctx context.Context) ([]domain.Source, error)
	UpsertSource(ctx context.Context, src domain.Source) error
}

// DedupStore is the backing store of the dedup index. Reserve must be a single
// atomic check-and-set: it returns true only to the caller that inserted the key.
// A zero retention keeps the key forever.
type DedupStore interface {
	Reserve(ctx context.Context, key domain.DedupKey, retention time.Duration) (bool, error)
	Release(ctx context.Context, key domain.DedupKey) error
}

// Queue is a durable at-least-once queue with visibility timeouts.
//
// ReceiveBatch increments each delivered message's receive count and hides it
// for the visibility timeout. Fail leaves the message hidden until the timeout
// elapses, or dead-letters it when its receive count exceeds the maximum.
type Queue interface {
	Publish(ctx context.Context, body []byte) (string, error)
	ReceiveBatch(ctx context.Context, maxSize int, visibilityTimeout time.Duration) ([]domain.QueueMessage, error)
	Ack(ctx context.Context, id string) error
	Fail(ctx context.Context, id, cause string) error
	DeadLetter(ctx context.Context, id, reason, detail string) error
}

// DeadLetterQueue exposes dead-lettered messages to operators.
type DeadLetterQueue interface {
	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
	Redrive(ctx context.Context, id string) error
}

// RecordStore is the external store for enriched records.
type RecordStore interface {
	// Upsert creates the record or merges fields into it.
	Upsert(ctx context.Context, id string, fields map[string]any) error
	// Merge updates an existing record and fails with ErrRecordNotFound otherwise.
	Merge(ctx context.Context, id string, fields map[string]any) error
	Get(ctx context.Context, id string) (domain.Record, error)
	Query(ctx context.Context, filter domain.RecordFilter) ([]domain.Record, error)
}

// FeedFetcher fetches candidate items from one source.
type FeedFetcher interface {
	FetchItems(ctx context.Context, src domain.Source) ([]domain.CandidateItem, error)
}

// Judge produces a raw relevance judgement for an item.
type Judge interface {
	Judge(ctx context.Context, item domain.CandidateItem) (domain.Judgement, error)
}

// ContentFetcher obtains article text for an admitted item.
type ContentFetcher interface {
	Fetch(ctx context.Context, item domain.CandidateItem) (domain.Article, error)
}

// Extractor calls the structured-extraction service.
type Extractor interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error)
	Model() string
}

// KeywordMetrics calls the keyword-intelligence service.
type KeywordMetrics interface {
	GetMetrics(ctx context.Context, keywords []string) ([]domain.KeywordMetric, error)
	RelatedKeywords(ctx context.Context, seeds []string, limit int) ([]domain.KeywordMetric, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}
