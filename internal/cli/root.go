// Package cli implements pipelinectl, the operator tool for the pipeline's
// stores: migrations, dead-letter inspection and redrive, source management,
// and record lookup.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dealfanatics/rss-pipeline/internal/app"
	"github.com/dealfanatics/rss-pipeline/internal/platform/config"
)

const (
	keyBackend = "storage_backend"
	keyDSN     = "postgres_dsn"
	keyQueue   = "queue_name"
	keyOutput  = "output"
	keyVerbose = "verbose"
)

// BackendOpener opens the stores a command runs against.
type BackendOpener func(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app.Backend, error)

// Options configures the command tree.
type Options struct {
	Out    io.Writer
	Err    io.Writer
	Open   BackendOpener
	Config func() (*config.Config, error)
}

type session struct {
	opts    Options
	v       *viper.Viper
	cfgFile string
}

// Execute runs pipelinectl with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand(Options{}).ExecuteContext(ctx) //nolint:wrapcheck // cobra errors are printed as-is
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	if opts.Open == nil {
		opts.Open = app.OpenBackend
	}

	if opts.Config == nil {
		opts.Config = config.Load
	}

	rt := &session{opts: opts, v: viper.New()}

	root := &cobra.Command{
		Use:   "pipelinectl",
		Short: "Operate the marketing content pipeline",
		Long: `pipelinectl inspects and repairs the pipeline's stores.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Config file (--config)
3. Environment variables (the same ones the pipeline service reads)`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return rt.initConfig()
		},
	}

	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&rt.cfgFile, "config", "", "YAML config file")
	flags.String("backend", "", "storage backend (postgres, memory)")
	flags.String("dsn", "", "Postgres connection string")
	flags.String("queue", "", "queue name")
	flags.StringP("output", "o", formatTable, "output format (table, json, yaml)")
	flags.BoolP("verbose", "v", false, "verbose logging")

	_ = rt.v.BindPFlag(keyBackend, flags.Lookup("backend"))
	_ = rt.v.BindPFlag(keyDSN, flags.Lookup("dsn"))
	_ = rt.v.BindPFlag(keyQueue, flags.Lookup("queue"))
	_ = rt.v.BindPFlag(keyOutput, flags.Lookup("output"))
	_ = rt.v.BindPFlag(keyVerbose, flags.Lookup("verbose"))

	root.AddCommand(
		newMigrateCommand(rt),
		newDLQCommand(rt),
		newSourcesCommand(rt),
		newRecordsCommand(rt),
	)

	return root
}

func (rt *session) initConfig() error {
	if rt.cfgFile == "" {
		return nil
	}

	rt.v.SetConfigFile(rt.cfgFile)

	if err := rt.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	return nil
}

// loadConfig reads the service configuration and applies flag and config
// file overrides on top.
func (rt *session) loadConfig() (*config.Config, error) {
	cfg, err := rt.opts.Config()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if v := rt.v.GetString(keyBackend); v != "" {
		cfg.StorageBackend = v
	}

	if v := rt.v.GetString(keyDSN); v != "" {
		cfg.Database.PostgresDSN = v
	}

	if v := rt.v.GetString(keyQueue); v != "" {
		cfg.Queue.Name = v
	}

	return cfg, nil
}

func (rt *session) logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if rt.v.GetBool(keyVerbose) {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: rt.opts.Err}).Level(level).With().Timestamp().Logger()
}

func (rt *session) format() (string, error) {
	f := strings.ToLower(rt.v.GetString(keyOutput))

	switch f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", f)
	}
}

// withBackend opens the configured backend, runs fn, and closes it.
func (rt *session) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *app.Backend) error) error {
	cfg, err := rt.loadConfig()
	if err != nil {
		return err
	}

	logger := rt.logger()
	ctx := cmd.Context()

	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := rt.opts.Open(ctx, cfg, &logger)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer backend.Close()

	return fn(ctx, backend)
}
