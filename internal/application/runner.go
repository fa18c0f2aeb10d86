package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/hallucheck/internal/domain"
	"github.com/ahrav/hallucheck/internal/ports"
)

// RunState is the position of a run in its linear lifecycle.
type RunState string

// Run states in the only order they can occur.
const (
	StateNotStarted RunState = "not started"
	StateGenerating RunState = "generating"
	StateJudging    RunState = "judging"
	StateReporting  RunState = "reporting"
	StateDone       RunState = "done"
)

var stateOrder = map[RunState]int{
	StateNotStarted: 0,
	StateGenerating: 1,
	StateJudging:    2,
	StateReporting:  3,
	StateDone:       4,
}

// Metric names emitted by the runner.
const (
	metricOutcomes          = "outcomes_total"
	metricHallucinationRate = "hallucination_rate"
)

var (
	// ErrGeneratorNil is returned when a runner is built without a generator.
	ErrGeneratorNil = errors.New("answer generator cannot be nil")
	// ErrJudgeNil is returned when a runner is built without a judge.
	ErrJudgeNil = errors.New("hallucination judge cannot be nil")
)

// RunInfo describes the run for the report header.
type RunInfo struct {
	RunID          string
	Mode           domain.Mode
	Dataset        string
	DatasetVersion string
	AnswerModel    string
	JudgeModel     string
}

// RunnerOption configures optional Runner dependencies.
type RunnerOption func(*Runner)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrency bounds how many questions are in flight. Values below one
// are treated as one.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) { r.concurrency = max(n, 1) }
}

// WithMetrics records per-question outcomes and stage latencies.
func WithMetrics(m ports.MetricsCollector) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// Runner drives questions through generation and judging and assembles the
// report. Each question gets at most one answer and one judgment, and
// per-question failures never stop the run.
type Runner struct {
	generator   ports.AnswerGenerator
	judge       ports.HallucinationJudge
	info        RunInfo
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     ports.MetricsCollector
	concurrency int
	now         func() time.Time

	mu    sync.Mutex
	state RunState
}

// NewRunner creates a runner for a single run.
func NewRunner(gen ports.AnswerGenerator, judge ports.HallucinationJudge, info RunInfo, opts ...RunnerOption) (*Runner, error) {
	if gen == nil {
		return nil, ErrGeneratorNil
	}
	if judge == nil {
		return nil, ErrJudgeNil
	}
	if !info.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, info.Mode)
	}

	r := &Runner{
		generator:   gen,
		judge:       judge,
		info:        info,
		logger:      slog.New(slog.DiscardHandler),
		tracer:      otel.Tracer("github.com/ahrav/hallucheck/internal/application"),
		concurrency: 1,
		now:         time.Now,
		state:       StateNotStarted,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State returns the current lifecycle state.
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// advance moves the run forward. Earlier states are ignored so concurrent
// questions cannot move it backwards.
func (r *Runner) advance(next RunState) {
	r.mu.Lock()
	if stateOrder[next] <= stateOrder[r.state] {
		r.mu.Unlock()
		return
	}
	prev := r.state
	r.state = next
	r.mu.Unlock()

	r.logger.Info("run state changed", "run_id", r.info.RunID, "from", string(prev), "to", string(next))
}

// Run processes qs in order and returns the report. The only error it
// returns is context cancellation; questions not reached by then are
// reported as errors so the report still covers every question.
func (r *Runner) Run(ctx context.Context, qs []domain.Question) (domain.Report, error) {
	if r.State() != StateNotStarted {
		return domain.Report{}, errors.New("runner has already been used")
	}

	ctx, span := r.tracer.Start(ctx, "hallucheck.run", trace.WithAttributes(
		attribute.String("run.id", r.info.RunID),
		attribute.String("run.mode", r.info.Mode.String()),
		attribute.Int("run.questions", len(qs)),
		attribute.Int("run.concurrency", r.concurrency),
	))
	defer span.End()

	started := r.now()
	r.logger.Info("starting run",
		"run_id", r.info.RunID,
		"mode", r.info.Mode.String(),
		"questions", len(qs),
		"concurrency", r.concurrency,
	)
	r.advance(StateGenerating)

	results := make([]domain.Result, len(qs))
	processed := make([]bool, len(qs))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, q := range qs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = r.process(ctx, i, q)
			processed[i] = true
			return nil
		})
	}
	_ = g.Wait()

	runErr := ctx.Err()
	for i := range results {
		if !processed[i] {
			results[i] = errorResult(qs[i], nil, runErr)
		}
	}

	r.advance(StateReporting)
	summary := domain.Summarize(results)
	report := domain.Report{
		RunID:          r.info.RunID,
		Mode:           r.info.Mode,
		Dataset:        r.info.Dataset,
		DatasetVersion: r.info.DatasetVersion,
		AnswerModel:    r.info.AnswerModel,
		JudgeModel:     r.info.JudgeModel,
		StartedAt:      started,
		Duration:       r.now().Sub(started),
		Results:        results,
		Summary:        summary,
	}
	r.recordSummary(summary)

	attrs := []any{
		"run_id", r.info.RunID,
		"total", summary.Total,
		"judged", summary.Judged,
		"hallucinated", summary.Hallucinated,
		"errors", summary.Errors,
		"unjudged", summary.Unjudged,
		"duration", report.Duration,
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		r.logger.Warn("run interrupted", append(attrs, "error", runErr)...)
		return report, fmt.Errorf("run interrupted: %w", runErr)
	}

	r.advance(StateDone)
	r.logger.Info("run finished", attrs...)
	return report, nil
}

// process generates then judges one question. It always returns a result
// carrying exactly one outcome.
func (r *Runner) process(ctx context.Context, idx int, q domain.Question) domain.Result {
	ctx, span := r.tracer.Start(ctx, "hallucheck.question", trace.WithAttributes(
		attribute.String("question.id", q.ID),
		attribute.Int("question.index", idx),
	))
	defer span.End()

	logger := r.logger.With("question_id", q.ID)

	start := r.now()
	answer, err := r.generator.Generate(ctx, q, r.info.Mode)
	r.recordStage(StateGenerating, r.now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer generation failed")
		logger.Warn("answer generation failed", "error", err)
		return r.finish(errorResult(q, nil, err))
	}
	logger.Debug("answer generated", "tokens_in", answer.TokensIn, "tokens_out", answer.TokensOut)

	r.advance(StateJudging)
	start = r.now()
	judgment, err := r.judge.Judge(ctx, q, answer)
	r.recordStage(StateJudging, r.now().Sub(start))

	res := domain.Result{Question: q, Answer: &answer, Judgment: judgment}
	if err != nil {
		span.RecordError(err)
		var parseErr *ports.JudgeParseError
		if errors.As(err, &parseErr) {
			logger.Warn("judge reply had no verdict", "error", err)
			res.Judgment.QuestionID = q.ID
			res.Judgment.Outcome = domain.OutcomeUnjudged
			res.Judgment.Hallucinated = false
			res.Judgment.Rationale = err.Error()
			res.Err = err
			return r.finish(res)
		}
		span.SetStatus(codes.Error, "judging failed")
		logger.Warn("judging failed", "error", err)
		return r.finish(errorResult(q, &answer, err))
	}

	span.SetAttributes(attribute.String("question.outcome", string(judgment.Outcome)))
	logger.Debug("answer judged", "outcome", string(judgment.Outcome), "similarity", judgment.Similarity)
	return r.finish(res)
}

// finish records the outcome metric for a completed question.
func (r *Runner) finish(res domain.Result) domain.Result {
	if r.metrics != nil {
		r.metrics.RecordCounter(metricOutcomes, 1, map[string]string{
			"mode":    r.info.Mode.String(),
			"outcome": string(res.Judgment.Outcome),
		})
	}
	return res
}

func (r *Runner) recordStage(stage RunState, d time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordLatency(string(stage), d, map[string]string{"stage": string(stage)})
}

func (r *Runner) recordSummary(s domain.RunSummary) {
	if r.metrics == nil {
		return
	}
	if rate, ok := s.Rate(); ok {
		r.metrics.RecordGauge(metricHallucinationRate, rate, map[string]string{"mode": r.info.Mode.String()})
	}
}

// errorResult marks q as failed. answer is kept when the failure happened
// while judging.
func errorResult(q domain.Question, answer *domain.AnswerRecord, err error) domain.Result {
	rationale := ""
	if err != nil {
		rationale = err.Error()
	}
	return domain.Result{
		Question: q,
		Answer:   answer,
		Judgment: domain.JudgmentRecord{
			QuestionID: q.ID,
			Outcome:    domain.OutcomeError,
			Rationale:  rationale,
		},
		Err: err,
	}
}
