package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ahrav/hallucheck/infrastructure/dataset"
	"github.com/ahrav/hallucheck/infrastructure/llm"
	"github.com/ahrav/hallucheck/infrastructure/middleware"
	"github.com/ahrav/hallucheck/infrastructure/report"
	"github.com/ahrav/hallucheck/infrastructure/units"
	"github.com/ahrav/hallucheck/internal/application"
	"github.com/ahrav/hallucheck/internal/domain"
	"github.com/ahrav/hallucheck/internal/ports"
)

// Retry backoff bounds used when --retries is set.
const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

// resolveConfig layers defaults, the config file, the environment and the
// flags the user set, then validates the result.
func resolveConfig(cmd *cobra.Command, f *evaluateFlags) (application.Config, error) {
	cfg := application.DefaultConfig()

	if f.configPath != "" {
		if err := application.LoadConfigFile(f.configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := application.ApplyEnv(&cfg, f.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("mode") {
		mode, err := domain.ParseMode(f.mode)
		if err != nil {
			return cfg, ports.NewConfigError("mode", err)
		}
		cfg.Mode = mode
	}
	if changed("limit") {
		cfg.Limit = f.limit
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("data") {
		cfg.DataPath = f.dataPath
	}
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if changed("timeout") {
		cfg.Answer.Timeout = f.timeout
	}
	if changed("judge-timeout") {
		cfg.Judge.Timeout = f.judgeTimeout
	}
	if changed("retries") {
		cfg.Retries = f.retries
	}
	if changed("rps") {
		cfg.RPS = f.rps
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("no-color") {
		cfg.NoColor = f.noColor
	}

	return cfg, cfg.Validate()
}

// runEvaluate wires the pipeline from a validated config and prints the
// report. Per-question failures end up in the report; only configuration
// problems and interruption are returned.
func runEvaluate(ctx context.Context, cfg application.Config, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, cfg.LogLevel)

	ds, err := loadDataset(cfg.DataPath, logger)
	if err != nil {
		return err
	}
	qs := dataset.Limit(ds.Questions, cfg.Limit)

	metrics := middleware.NewPrometheusMetrics()
	cache := llm.NewMemoryCache()

	answerClient, err := newLLMClient("answer", cfg.Answer, cfg, metrics, cache)
	if err != nil {
		return err
	}
	judgeClient, err := newLLMClient("judge", cfg.Judge, cfg, metrics, cache)
	if err != nil {
		return err
	}

	answerer, err := units.NewAnswererUnit(answerClient, units.DefaultAnswererConfig())
	if err != nil {
		return fmt.Errorf("failed to create answerer: %w", err)
	}
	judge, err := units.NewHallucinationJudgeUnit(judgeClient, units.DefaultHallucinationJudgeConfig())
	if err != nil {
		return fmt.Errorf("failed to create judge: %w", err)
	}

	runID := uuid.NewString()
	runner, err := application.NewRunner(answerer, judge,
		application.RunInfo{
			RunID:          runID,
			Mode:           cfg.Mode,
			Dataset:        ds.Name,
			DatasetVersion: ds.Version,
			AnswerModel:    answerClient.GetModel(),
			JudgeModel:     judgeClient.GetModel(),
		},
		application.WithLogger(logger),
		application.WithConcurrency(cfg.Concurrency),
		application.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	rep, runErr := runner.Run(ctx, qs)

	if err := report.Render(stdout, rep, report.Options{Verbose: cfg.Verbose, NoColor: cfg.NoColor}); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to render report: %w", err))
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics file", "path", cfg.MetricsFile, "error", err)
		} else {
			logger.Info("metrics written", "path", cfg.MetricsFile)
		}
	}

	return runErr
}

// loadDataset reads the question file or falls back to the built-in set.
// Any failure here is a configuration error.
func loadDataset(path string, logger *slog.Logger) (dataset.Dataset, error) {
	var (
		ds  dataset.Dataset
		err error
	)
	if path == "" {
		ds, err = dataset.Default(logger)
	} else {
		ds, err = dataset.Load(path, logger)
	}
	if err != nil {
		return ds, ports.NewConfigError("data", err)
	}
	logger.Info("dataset loaded", "name", ds.Name, "version", ds.Version, "questions", ds.Len())
	return ds, nil
}

// newLLMClient builds a provider client wrapped in the middleware chain.
// The first entry is outermost: tracing sees cache hits, metrics see every
// attempt the retry layer makes, and the timeout bounds a single attempt.
func newLLMClient(
	role string,
	pc application.ProviderConfig,
	cfg application.Config,
	metrics ports.MetricsCollector,
	cache ports.CacheStore,
) (*llm.Client, error) {
	chain := []llm.Middleware{
		llm.TracingMiddleware(role),
		llm.CacheMiddleware(cache, role+"/"+pc.Provider),
		llm.RetryMiddleware(cfg.Retries, retryBaseDelay, retryMaxDelay),
		llm.MetricsMiddleware(metrics, pc.Provider),
		llm.RateLimitMiddleware(rate.Limit(cfg.RPS), 1),
		llm.TimeoutMiddleware(pc.Timeout),
	}

	client, err := llm.NewClient(pc.Provider, llm.ClientConfig{
		APIKey:     pc.APIKey,
		Model:      pc.Model,
		BaseURL:    pc.BaseURL,
		Timeout:    pc.Timeout,
		Middleware: chain,
	})
	if err != nil {
		return nil, ports.NewConfigError(role+".provider", err)
	}
	return client, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
