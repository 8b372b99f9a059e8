// Package consumer drains the article queue in bounded batches and settles
// every message on its own: ack, fail for redelivery, or dead-letter.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
)

const (
	defaultBatchSize         = 5
	defaultVisibilityTimeout = 15 * time.Minute
	defaultMaxReceiveCount   = 3
	settleTimeout            = 10 * time.Second

	componentConsumer = "consumer"
)

// Log field constants
const (
	logFieldBatchID      = "batch_id"
	logFieldMessageID    = "message_id"
	logFieldReceiveCount = "receive_count"
	logFieldDedupKey     = "dedup_key"
	logFieldOutcome      = "outcome"
	logFieldErrorKind    = "error_kind"
)

// Processor handles one decoded payload. Returned errors are routed by class.
type Processor interface {
	Process(ctx context.Context, payload domain.ArticlePayload) error
}

// Config configures the consumer.
type Config struct {
	BatchSize         int
	VisibilityTimeout time.Duration
	MaxReceiveCount   int
	Concurrency       int
}

// BatchResult counts the outcomes of one batch.
type BatchResult struct {
	Received     int
	Acked        int
	Failed       int
	DeadLettered int
	Unfinished   int // Left to the visibility timeout because the deadline expired
}

// Consumer receives and settles batches.
type Consumer struct {
	queue     ports.Queue
	processor Processor
	cfg       Config
	logger    *zerolog.Logger
	now       func() time.Time
}

// New creates a Consumer.
func New(queue ports.Queue, processor Processor, cfg Config, logger *zerolog.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = defaultVisibilityTimeout
	}

	if cfg.MaxReceiveCount <= 0 {
		cfg.MaxReceiveCount = defaultMaxReceiveCount
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.BatchSize
	}

	return &Consumer{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RunBatch receives one batch and processes its messages concurrently. The
// only error is a failed receive; per-message failures are settled on the
// queue and counted in the result.
func (c *Consumer) RunBatch(ctx context.Context) (BatchResult, error) {
	start := c.now()
	logger := c.logger.With().Str(logFieldBatchID, uuid.NewString()).Logger()

	msgs, err := c.queue.ReceiveBatch(ctx, c.cfg.BatchSize, c.cfg.VisibilityTimeout)
	if err != nil {
		return BatchResult{}, fmt.Errorf("receive batch: %w", err)
	}

	result := BatchResult{Received: len(msgs)}
	if len(msgs) == 0 {
		return result, nil
	}

	outcomes := make([]settlement, len(msgs))
	sem := make(chan struct{}, c.cfg.Concurrency)

	var wg sync.WaitGroup

	for i := range msgs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = c.handle(ctx, msgs[i], logger)
		}(i)
	}

	wg.Wait()

	for _, o := range outcomes {
		switch {
		case o.unfinished:
			result.Unfinished++
		case o.outcome == domain.OutcomeAck:
			result.Acked++
		case o.outcome == domain.OutcomePermanentFail:
			result.DeadLettered++
		default:
			result.Failed++
		}
	}

	observability.ConsumerBatchDurationSeconds.Observe(c.now().Sub(start).Seconds())

	logger.Info().
		Int("received", result.Received).
		Int("acked", result.Acked).
		Int("failed", result.Failed).
		Int("dead_lettered", result.DeadLettered).
		Int("unfinished", result.Unfinished).
		Msg("batch complete")

	return result, nil
}

type settlement struct {
	outcome    domain.Outcome
	unfinished bool
}

func (c *Consumer) handle(ctx context.Context, msg domain.QueueMessage, parent zerolog.Logger) (s settlement) {
	logger := parent.With().
		Str(logFieldMessageID, msg.ID).
		Int(logFieldReceiveCount, msg.ReceiveCount).
		Logger()

	observability.ConsumerReceiveCount.Observe(float64(msg.ReceiveCount))

	payload, err := decodePayload(msg.Body)
	if err == nil {
		logger = logger.With().Str(logFieldDedupKey, payload.Key.String()).Logger()
		err = c.process(ctx, payload)
	}

	kind := errors.Classify(err)
	if kind != errors.KindNone && ctx.Err() != nil {
		logger.Warn().Err(err).Msg("batch deadline expired, leaving message to visibility timeout")

		return settlement{outcome: domain.OutcomeFail, unfinished: true}
	}

	s.outcome = outcomeFor(kind)
	observability.ConsumerOutcomes.WithLabelValues(s.outcome.String(), kind.String()).Inc()

	// Settle even when the batch deadline passed after a successful process.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	switch s.outcome {
	case domain.OutcomeAck:
		c.ack(settleCtx, msg, logger)
	case domain.OutcomePermanentFail:
		c.deadLetter(settleCtx, msg, err, logger)
	case domain.OutcomeFail:
		c.fail(settleCtx, msg, err, kind, logger)
	}

	return s
}

// process runs the processor and turns a panic into a transient failure.
func (c *Consumer) process(ctx context.Context, payload domain.ArticlePayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while processing: %v", errors.ErrTransient, r)
		}
	}()

	return c.processor.Process(ctx, payload)
}

func (c *Consumer) ack(ctx context.Context, msg domain.QueueMessage, logger zerolog.Logger) {
	if err := c.queue.Ack(ctx, msg.ID); err != nil {
		logger.Error().Err(err).Msg("failed to ack message")

		return
	}

	logger.Info().Str(logFieldOutcome, domain.OutcomeAck.String()).Msg("message processed")
}

func (c *Consumer) deadLetter(ctx context.Context, msg domain.QueueMessage, cause error, logger zerolog.Logger) {
	reason := deadLetterReason(cause)
	event := logger.Warn()

	if errors.Classify(cause) == errors.KindConfiguration {
		observability.ConfigurationErrors.WithLabelValues(componentConsumer).Inc()

		event = logger.Error()
	}

	if err := c.queue.DeadLetter(ctx, msg.ID, reason, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to dead-letter message")

		return
	}

	observability.DeadLettered.WithLabelValues(reason).Inc()
	event.
		Err(cause).
		Str(logFieldOutcome, domain.OutcomePermanentFail.String()).
		Str("reason", reason).
		Msg("message dead-lettered")
}

func (c *Consumer) fail(ctx context.Context, msg domain.QueueMessage, cause error, kind errors.Kind, logger zerolog.Logger) {
	if err := c.queue.Fail(ctx, msg.ID, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to release message for redelivery")

		return
	}

	exhausted := msg.ReceiveCount > c.cfg.MaxReceiveCount
	if exhausted {
		observability.DeadLettered.WithLabelValues(domain.ReasonMaxReceiveCount).Inc()
	}

	logger.Warn().
		Err(cause).
		Str(logFieldOutcome, domain.OutcomeFail.String()).
		Str(logFieldErrorKind, kind.String()).
		Bool("receive_budget_exhausted", exhausted).
		Msg("message failed")
}

func outcomeFor(kind errors.Kind) domain.Outcome {
	switch kind {
	case errors.KindNone:
		return domain.OutcomeAck
	case errors.KindPermanent, errors.KindConfiguration:
		// Configuration errors need an operator; retrying only burns the budget.
		return domain.OutcomePermanentFail
	default:
		return domain.OutcomeFail
	}
}

func deadLetterReason(err error) string {
	switch {
	case errors.Classify(err) == errors.KindConfiguration:
		return domain.ReasonConfiguration
	case errors.Is(err, errors.ErrMalformedPayload):
		return domain.ReasonMalformedPayload
	case errors.Is(err, errors.ErrContentUnavailable):
		return domain.ReasonContentUnavailable
	case errors.Is(err, errors.ErrUnexpectedResponse):
		return domain.ReasonExtractionUnparseable
	default:
		return domain.ReasonPermanent
	}
}

// decodePayload parses and validates a queue body.
func decodePayload(body []byte) (domain.ArticlePayload, error) {
	var payload domain.ArticlePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.ArticlePayload{}, fmt.Errorf("%w: %w", errors.ErrMalformedPayload, err)
	}

	if payload.Key == "" || payload.Item.URL == "" {
		return domain.ArticlePayload{}, fmt.Errorf("%w: missing dedup key or url", errors.ErrMalformedPayload)
	}

	return payload, nil
}
