package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/hallucheck/internal/application"
)

// evaluateFlags holds raw flag values. Only flags the user actually set
// override the config file and environment.
type evaluateFlags struct {
	mode         string
	limit        int
	verbose      bool
	dataPath     string
	configPath   string
	envFile      string
	concurrency  int
	timeout      time.Duration
	judgeTimeout time.Duration
	retries      int
	rps          float64
	metricsFile  string
	logLevel     string
	noColor      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "hallucheck",
		Short: "Measure hallucination rates of hosted language models",
		Long: `hallucheck sends a bilingual (Vietnamese/English) question set to an answer
model, asks a second judge model whether each answer is faithful to the
reference, and prints the hallucination rate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newEvaluateCmd(stdout, stderr))
	return root
}

func newEvaluateCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &evaluateFlags{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the generate-then-judge pipeline over the question set",
		Example: `  hallucheck evaluate --mode baseline
  hallucheck evaluate --mode rag-assisted --limit 5 -v
  hallucheck evaluate --mode prompt-tuned --data questions.jsonl --concurrency 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runEvaluate(cmd.Context(), cfg, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.mode, "mode", "", "Prompting mode: baseline, prompt-tuned or rag-assisted (required)")
	flags.IntVarP(&f.limit, "limit", "l", 0, "Only evaluate the first N questions (0 means all)")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Print the full per-question table")
	flags.StringVarP(&f.dataPath, "data", "d", "", "Question file (.jsonl, .yaml); defaults to the built-in set")
	flags.StringVar(&f.configPath, "config", "", "Optional YAML config file")
	flags.StringVar(&f.envFile, "env-file", application.DefaultEnvFile, "Environment file holding API keys")
	flags.IntVar(&f.concurrency, "concurrency", 1, "Questions processed at once")
	flags.DurationVar(&f.timeout, "timeout", 0, "Answer request timeout (default 60s)")
	flags.DurationVar(&f.judgeTimeout, "judge-timeout", 0, "Judge request timeout (default 30s)")
	flags.IntVar(&f.retries, "retries", 0, "Retries for transient provider failures")
	flags.Float64Var(&f.rps, "rps", 0, "Maximum requests per second per provider (0 means unlimited)")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.BoolVar(&f.noColor, "no-color", false, "Disable colored output")

	return cmd
}
