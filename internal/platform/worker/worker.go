// Package worker provides the loop shapes every pipeline stage runs in:
// a drain loop for the queue consumer and a fixed-interval schedule for the
// poller and the keyword scan. Each iteration runs under its own deadline.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// ProcessFunc is called each iteration. It returns the number of units handled
// so the loop can skip its idle wait while there is a backlog.
type ProcessFunc func(ctx context.Context) (int, error)

// LoopConfig configures a drain loop.
type LoopConfig struct {
	// Name identifies the worker for logging.
	Name string

	// IdleWait is the pause after an iteration that handled nothing.
	IdleWait time.Duration

	// Timeout bounds each iteration. Zero means no per-iteration deadline.
	Timeout time.Duration

	// Process is called each iteration to do the main work.
	Process ProcessFunc

	// Once runs a single iteration and returns.
	Once bool

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Loop runs Process until ctx is canceled. Iteration errors are logged and the
// loop continues; each iteration is a fresh, independent execution.
// Returns a wrapped context error when the context is canceled.
func Loop(ctx context.Context, cfg LoopConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")

	for {
		if err := checkCanceled(ctx, cfg.Name); err != nil {
			return err
		}

		handled := runIteration(ctx, cfg, logger)

		if cfg.Once {
			return nil
		}

		if handled > 0 {
			continue
		}

		if err := Wait(ctx, cfg.IdleWait); err != nil {
			return err
		}
	}
}

func runIteration(ctx context.Context, cfg LoopConfig, logger *zerolog.Logger) (handled int) {
	defer RecoverPanic(logger, cfg.Name)

	err := RunWithTimeout(ctx, cfg.Timeout, func(ctx context.Context) error {
		n, err := cfg.Process(ctx)
		handled = n

		return err
	})
	if err != nil {
		logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("process error")
	}

	return handled
}

// ScheduleConfig configures a fixed-interval task.
type ScheduleConfig struct {
	// Name identifies the task for logging.
	Name string

	// Interval between runs.
	Interval time.Duration

	// Timeout bounds each run. Zero means no per-run deadline.
	Timeout time.Duration

	// RunOnStart runs the task immediately when starting.
	RunOnStart bool

	// Once runs the task a single time and returns.
	Once bool

	// Run is the scheduled task.
	Run func(ctx context.Context) error

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Every runs cfg.Run on a ticker until ctx is canceled. A slow run delays the
// next tick instead of overlapping with it.
func Every(ctx context.Context, cfg ScheduleConfig) error {
	logger := getLogger(cfg.Logger)

	if cfg.Once {
		runScheduled(ctx, cfg, logger)

		return nil
	}

	logger.Info().Str(logFieldTask, cfg.Name).Dur("interval", cfg.Interval).Msg("starting schedule")

	defer logger.Info().Str(logFieldTask, cfg.Name).Msg("schedule stopped")

	if cfg.RunOnStart {
		runScheduled(ctx, cfg, logger)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("schedule %s: %w", cfg.Name, ctx.Err())
		case <-ticker.C:
			runScheduled(ctx, cfg, logger)
		}
	}
}

func runScheduled(ctx context.Context, cfg ScheduleConfig, logger *zerolog.Logger) {
	defer RecoverPanic(logger, cfg.Name)

	logger.Debug().Str(logFieldTask, cfg.Name).Msg("running scheduled task")

	if err := RunWithTimeout(ctx, cfg.Timeout, cfg.Run); err != nil {
		logger.Error().Err(err).Str(logFieldTask, cfg.Name).Msg("scheduled task failed")
	}
}

func checkCanceled(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("worker loop %s: %w", name, ctx.Err())
	default:
		return nil
	}
}

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RunWithTimeout runs fn with a timeout derived from the parent context.
// A non-positive timeout runs fn with the parent context unchanged.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
