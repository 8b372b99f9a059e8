// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Poller mode: hourly feed poll cycles that score, dedup and enqueue items
//   - Consumer mode: batch consumer that enriches queued articles
//   - Keywords mode: periodic keyword-metrics scan over enriched records
//   - All mode: every stage in one process
//
// Each mode can be run independently or combined based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dealfanatics/rss-pipeline/internal/core/canonical"
	"github.com/dealfanatics/rss-pipeline/internal/core/keywords"
	"github.com/dealfanatics/rss-pipeline/internal/core/llm"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
	"github.com/dealfanatics/rss-pipeline/internal/ingest/article"
	"github.com/dealfanatics/rss-pipeline/internal/ingest/feeds"
	"github.com/dealfanatics/rss-pipeline/internal/platform/config"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
	"github.com/dealfanatics/rss-pipeline/internal/platform/sourcefile"
	"github.com/dealfanatics/rss-pipeline/internal/platform/worker"
	"github.com/dealfanatics/rss-pipeline/internal/process/consumer"
	"github.com/dealfanatics/rss-pipeline/internal/process/dedup"
	"github.com/dealfanatics/rss-pipeline/internal/process/enrichment"
	"github.com/dealfanatics/rss-pipeline/internal/process/poller"
	"github.com/dealfanatics/rss-pipeline/internal/process/scoring"
	db "github.com/dealfanatics/rss-pipeline/internal/storage"
)

// Modes accepted by Run.
const (
	ModePoller   = "poller"
	ModeConsumer = "consumer"
	ModeKeywords = "keywords"
	ModeAll      = "all"
)

const (
	componentKey   = "component"
	logFieldPurged = "purged"
)

// ErrUnknownMode is returned by Run for an unsupported mode.
var ErrUnknownMode = errors.New("unknown mode")

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg     *config.Config
	backend *Backend
	logger  *zerolog.Logger

	// Overridable for tests.
	feedFetcher    ports.FeedFetcher
	contentFetcher ports.ContentFetcher
	extractor      ports.Extractor
	judge          ports.Judge
	keywordMetrics ports.KeywordMetrics
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, backend *Backend, logger *zerolog.Logger) *App {
	return &App{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	checks := map[string]ports.Pinger{}
	if a.backend.Pinger != nil {
		checks[a.cfg.StorageBackend] = a.backend.Pinger
	}

	srv := observability.NewServer(checks, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// SyncSourcesFile loads SOURCES_FILE, when configured, into the source store.
func (a *App) SyncSourcesFile(ctx context.Context) error {
	if a.cfg.SourcesFile == "" {
		return nil
	}

	sources, err := sourcefile.Load(a.cfg.SourcesFile)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}

	for _, src := range sources {
		if err := a.backend.Sources.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("sync source %s: %w", src.URL, err)
		}
	}

	a.logger.Info().Int("sources", len(sources)).Str("file", a.cfg.SourcesFile).Msg("sources synced")

	return nil
}

// Run starts the stage(s) for mode. With once set, each stage runs a single
// cycle, batch or scan and returns.
func (a *App) Run(ctx context.Context, mode string, once bool) error {
	switch mode {
	case ModePoller:
		return a.RunPoller(ctx, once)
	case ModeConsumer:
		return a.RunConsumer(ctx, once)
	case ModeKeywords:
		return a.RunKeywords(ctx, once)
	case ModeAll:
		return a.RunAll(ctx, once)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// RunAll runs every stage concurrently. The first stage to fail stops the others.
func (a *App) RunAll(ctx context.Context, once bool) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.RunPoller(gctx, once) })
	g.Go(func() error { return a.RunConsumer(gctx, once) })
	g.Go(func() error { return a.RunKeywords(gctx, once) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run all stages: %w", err)
	}

	return nil
}

// RunPoller runs poll cycles every POLL_INTERVAL.
func (a *App) RunPoller(ctx context.Context, once bool) error {
	logger := a.logger.With().Str(componentKey, ModePoller).Logger()

	p, err := a.newPoller(&logger)
	if err != nil {
		return err
	}

	return worker.Every(ctx, worker.ScheduleConfig{ //nolint:wrapcheck // worker wraps with the task name
		Name:       ModePoller,
		Interval:   a.cfg.Poller.Interval,
		Timeout:    a.cfg.Poller.Timeout,
		RunOnStart: true,
		Once:       once,
		Logger:     &logger,
		Run: func(ctx context.Context) error {
			if _, err := p.Run(ctx); err != nil {
				return fmt.Errorf("poll cycle: %w", err)
			}

			a.purgeDedupKeys(ctx, &logger)

			return nil
		},
	})
}

func (a *App) newPoller(logger *zerolog.Logger) (*poller.Poller, error) {
	judge, err := a.relevanceJudge(logger)
	if err != nil {
		return nil, err
	}

	rules := canonical.DefaultRules()
	if len(a.cfg.Dedup.StripParams) > 0 {
		rules.StripParams = a.cfg.Dedup.StripParams
	}

	rules.StripAllQuery = a.cfg.Dedup.StripAllQuery
	rules.StripWWW = a.cfg.Dedup.StripWWW

	index := dedup.New(a.backend.Dedup, canonical.New(rules), a.cfg.Dedup.Retention)
	scorer := scoring.New(judge, scoring.Config{
		Threshold:         a.cfg.Scoring.Threshold,
		PriorityThreshold: a.cfg.Scoring.PriorityThreshold,
	})

	fetcher := a.feedFetcher
	if fetcher == nil {
		fetcher = feeds.NewFetcher(feeds.Config{
			UserAgent: a.cfg.UserAgent,
			Timeout:   a.cfg.Poller.FeedRequestTimeout,
			MaxItems:  a.cfg.Poller.MaxItemsPerSource,
		})
	}

	return poller.New(a.backend.Sources, fetcher, index, scorer, a.backend.Queue,
		poller.Config{Concurrency: a.cfg.Poller.Concurrency}, logger), nil
}

func (a *App) relevanceJudge(logger *zerolog.Logger) (ports.Judge, error) {
	if a.judge != nil {
		return a.judge, nil
	}

	if a.cfg.Scoring.Mode != config.ScorerLLM {
		return scoring.NewHeuristicJudge(scoring.DefaultRubric()), nil
	}

	client, err := a.llmClient(logger)
	if err != nil {
		return nil, err
	}

	return client, nil
}

func (a *App) llmClient(logger *zerolog.Logger) (*llm.Client, error) {
	client, err := llm.New(llm.Config{
		APIKey:  a.cfg.LLM.APIKey,
		BaseURL: a.cfg.LLM.BaseURL,
		Model:   a.cfg.LLM.Model,
		RPS:     a.cfg.LLM.RPS,
		Timeout: a.cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	return client, nil
}

// purgeDedupKeys drops expired reservations when a finite retention is set.
func (a *App) purgeDedupKeys(ctx context.Context, logger *zerolog.Logger) {
	if a.cfg.Dedup.Retention <= 0 || a.backend.Database == nil {
		return
	}

	purged, err := a.backend.Database.NewDedupStore().PurgeExpired(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to purge expired dedup keys")

		return
	}

	if purged > 0 {
		logger.Info().Int64(logFieldPurged, purged).Msg("expired dedup keys purged")
	}
}

// RunConsumer drains the queue in batches. Iterations that received nothing
// wait QUEUE_WAIT_INTERVAL before polling again.
func (a *App) RunConsumer(ctx context.Context, once bool) error {
	logger := a.logger.With().Str(componentKey, ModeConsumer).Logger()

	c, err := a.newConsumer(&logger)
	if err != nil {
		return err
	}

	return worker.Loop(ctx, worker.LoopConfig{ //nolint:wrapcheck // worker wraps with the loop name
		Name:     ModeConsumer,
		IdleWait: a.cfg.Queue.WaitInterval,
		Timeout:  a.cfg.Consumer.BatchTimeout,
		Once:     once,
		Logger:   &logger,
		Process: func(ctx context.Context) (int, error) {
			res, err := c.RunBatch(ctx)

			return res.Received, err
		},
	})
}

func (a *App) newConsumer(logger *zerolog.Logger) (*consumer.Consumer, error) {
	extractor := a.extractor
	if extractor == nil {
		client, err := a.llmClient(logger)
		if err != nil {
			return nil, err
		}

		extractor = client
	}

	fetcher := a.contentFetcher
	if fetcher == nil {
		fetcher = article.NewFetcher(article.Config{
			UserAgent:     a.cfg.UserAgent,
			Timeout:       a.cfg.Article.FetchTimeout,
			RPS:           a.cfg.Article.FetchRPS,
			TextLimit:     a.cfg.Article.TextLimit,
			MinText:       a.cfg.Article.MinText,
			RespectRobots: a.cfg.Article.RespectRobots,
		})
	}

	enricher := enrichment.NewEnricher(fetcher, extractor, a.backend.Records, logger)

	return consumer.New(a.backend.Queue, enricher, consumer.Config{
		BatchSize:         a.cfg.Queue.BatchSize,
		VisibilityTimeout: a.cfg.Queue.VisibilityTimeout,
		MaxReceiveCount:   a.cfg.Queue.MaxReceiveCount,
		Concurrency:       a.cfg.Consumer.Concurrency,
	}, logger), nil
}

// RunKeywords runs the keyword-metrics scan every KEYWORD_SCAN_INTERVAL. With
// the Postgres backend an advisory lock keeps replicas from scanning together.
func (a *App) RunKeywords(ctx context.Context, once bool) error {
	logger := a.logger.With().Str(componentKey, ModeKeywords).Logger()

	scanner, err := a.newKeywordScanner(&logger)
	if err != nil {
		return err
	}

	return worker.Every(ctx, worker.ScheduleConfig{ //nolint:wrapcheck // worker wraps with the task name
		Name:       ModeKeywords,
		Interval:   a.cfg.Keywords.ScanInterval,
		Timeout:    a.cfg.Keywords.ScanTimeout,
		RunOnStart: true,
		Once:       once,
		Logger:     &logger,
		Run: func(ctx context.Context) error {
			return a.withScanLock(ctx, &logger, func(ctx context.Context) error {
				if _, err := scanner.Run(ctx); err != nil {
					return fmt.Errorf("keyword scan: %w", err)
				}

				return nil
			})
		},
	})
}

func (a *App) newKeywordScanner(logger *zerolog.Logger) (*enrichment.KeywordScanner, error) {
	metrics := a.keywordMetrics
	if metrics == nil {
		client, err := keywords.New(keywords.Config{
			BaseURL: a.cfg.Keywords.APIURL,
			Token:   a.cfg.Keywords.APIToken,
			Timeout: a.cfg.Keywords.Timeout,
			RPS:     a.cfg.Keywords.RPS,
		})
		if err != nil {
			observability.ConfigurationErrors.WithLabelValues(ModeKeywords).Inc()

			return nil, fmt.Errorf("keyword client: %w", err)
		}

		metrics = client
	}

	return enrichment.NewKeywordScanner(a.backend.Records, metrics, enrichment.ScanConfig{
		RecordsPerRun: a.cfg.Keywords.RecordsPerRun,
		BatchSize:     a.cfg.KeywordBatchSize(),
		RelatedLimit:  a.cfg.Keywords.RelatedLimit,
	}, logger), nil
}

func (a *App) withScanLock(ctx context.Context, logger *zerolog.Logger, fn func(ctx context.Context) error) error {
	if a.backend.Database == nil {
		return fn(ctx)
	}

	lock, err := a.backend.Database.TryAcquireAdvisoryLock(ctx, db.KeywordScanLockID)
	if err != nil {
		return fmt.Errorf("keyword scan lock: %w", err)
	}

	if lock == nil {
		logger.Info().Msg("keyword scan already running elsewhere, skipping")

		return nil
	}

	defer func() {
		//nolint:contextcheck // release must run even when the scan deadline expired
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("failed to release keyword scan lock")
		}
	}()

	return fn(ctx)
}
