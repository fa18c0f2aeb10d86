package application

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ahrav/hallucheck/infrastructure/dataset"
	"github.com/ahrav/hallucheck/infrastructure/middleware"
	"github.com/ahrav/hallucheck/infrastructure/report"
	"github.com/ahrav/hallucheck/infrastructure/units"
	"github.com/ahrav/hallucheck/internal/domain"
	"github.com/ahrav/hallucheck/internal/ports"
	"github.com/ahrav/hallucheck/internal/testutils"
)

// stubGenerator answers from a script keyed by question id.
type stubGenerator struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	modes   []domain.Mode
	hook    func(ctx context.Context, q domain.Question) error
}

func (g *stubGenerator) Generate(ctx context.Context, q domain.Question, mode domain.Mode) (domain.AnswerRecord, error) {
	g.mu.Lock()
	g.modes = append(g.modes, mode)
	g.mu.Unlock()

	if g.hook != nil {
		if err := g.hook(ctx, q); err != nil {
			return domain.AnswerRecord{}, err
		}
	}
	if err, ok := g.errs[q.ID]; ok {
		return domain.AnswerRecord{}, err
	}
	text, ok := g.answers[q.ID]
	if !ok {
		text = "answer to " + q.ID
	}
	return domain.AnswerRecord{QuestionID: q.ID, Mode: mode, Text: text, Model: "stub-answer"}, nil
}

// stubJudge returns a verdict per question id.
type stubJudge struct {
	verdicts map[string]bool
	errs     map[string]error
	calls    atomic.Int32
}

func (j *stubJudge) Judge(_ context.Context, q domain.Question, _ domain.AnswerRecord) (domain.JudgmentRecord, error) {
	j.calls.Add(1)
	if err, ok := j.errs[q.ID]; ok {
		return domain.JudgmentRecord{QuestionID: q.ID, Outcome: domain.OutcomeUnjudged}, err
	}
	return domain.NewVerdict(q.ID, j.verdicts[q.ID], "", ""), nil
}

func questions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		id := fmt.Sprintf("q%d", i+1)
		qs[i] = domain.Question{ID: id, Text: "Question " + id + "?", Reference: "ref " + id, Context: "ctx " + id}
	}
	return qs
}

func newTestRunner(t *testing.T, gen ports.AnswerGenerator, judge ports.HallucinationJudge, opts ...RunnerOption) *Runner {
	t.Helper()
	r, err := NewRunner(gen, judge, RunInfo{RunID: "run-test", Mode: domain.ModeBaseline}, opts...)
	require.NoError(t, err)
	return r
}

func TestNewRunner(t *testing.T) {
	gen := &stubGenerator{}
	judge := &stubJudge{}

	tests := []struct {
		name    string
		gen     ports.AnswerGenerator
		judge   ports.HallucinationJudge
		mode    domain.Mode
		wantErr error
	}{
		{name: "valid", gen: gen, judge: judge, mode: domain.ModeBaseline},
		{name: "nil generator", judge: judge, mode: domain.ModeBaseline, wantErr: ErrGeneratorNil},
		{name: "nil judge", gen: gen, mode: domain.ModeBaseline, wantErr: ErrJudgeNil},
		{name: "invalid mode", gen: gen, judge: judge, mode: "rag", wantErr: domain.ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRunner(tt.gen, tt.judge, RunInfo{Mode: tt.mode})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateNotStarted, r.State())
		})
	}
}

func TestRunner_Run_Outcomes(t *testing.T) {
	// Given four questions that end in each possible outcome
	gen := &stubGenerator{errs: map[string]error{
		"q4": ports.NewTransportError("sonar", "answer", 503, ports.ErrServiceUnavailable),
	}}
	judge := &stubJudge{
		verdicts: map[string]bool{"q1": false, "q2": true},
		errs:     map[string]error{"q3": ports.NewJudgeParseError("q3", "maybe")},
	}
	r := newTestRunner(t, gen, judge)

	// When running
	rep, err := r.Run(context.Background(), questions(4))

	// Then every question has exactly one outcome in input order
	require.NoError(t, err)
	require.Len(t, rep.Results, 4)
	want := []domain.Outcome{domain.OutcomeFaithful, domain.OutcomeHallucinated, domain.OutcomeUnjudged, domain.OutcomeError}
	for i, res := range rep.Results {
		assert.Equal(t, fmt.Sprintf("q%d", i+1), res.Question.ID)
		assert.Equal(t, fmt.Sprintf("q%d", i+1), res.Judgment.QuestionID)
		assert.Equal(t, want[i], res.Judgment.Outcome, res.Question.ID)
	}

	assert.Nil(t, rep.Results[3].Answer, "failed generation has no answer")
	assert.Contains(t, rep.Results[3].Judgment.Rationale, "transport error")
	assert.Contains(t, rep.Results[2].Judgment.Rationale, "judge parse error")
	assert.False(t, rep.Results[2].Judgment.Hallucinated)

	assert.Equal(t, domain.RunSummary{Total: 4, Judged: 2, Hallucinated: 1, Faithful: 1, Errors: 1, Unjudged: 1}, rep.Summary)
	assert.Equal(t, int32(3), judge.calls.Load(), "judge skipped when generation failed")
	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, "run-test", rep.RunID)
	assert.Equal(t, domain.ModeBaseline, rep.Mode)
}

func TestRunner_Run_JudgeTransportErrorKeepsAnswer(t *testing.T) {
	gen := &stubGenerator{}
	judge := &stubJudge{errs: map[string]error{
		"q1": ports.NewMalformedResponseError("gpt-4.1", "choices", ports.ErrMissingField),
	}}
	r := newTestRunner(t, gen, judge)

	rep, err := r.Run(context.Background(), questions(2))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeError, rep.Results[0].Judgment.Outcome)
	require.NotNil(t, rep.Results[0].Answer)
	assert.Equal(t, "answer to q1", rep.Results[0].Answer.Text)
	assert.Equal(t, domain.OutcomeFaithful, rep.Results[1].Judgment.Outcome, "run continues after a failure")
}

func TestRunner_Run_PassesModeToGenerator(t *testing.T) {
	gen := &stubGenerator{}
	r, err := NewRunner(gen, &stubJudge{}, RunInfo{Mode: domain.ModeRAGAssisted})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), questions(3))

	require.NoError(t, err)
	assert.Equal(t, []domain.Mode{domain.ModeRAGAssisted, domain.ModeRAGAssisted, domain.ModeRAGAssisted}, gen.modes)
}

func TestRunner_Run_Cancellation(t *testing.T) {
	// Given a run whose context is cancelled while the second question runs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &stubGenerator{hook: func(ctx context.Context, q domain.Question) error {
		if q.ID == "q2" {
			cancel()
			return ctx.Err()
		}
		return nil
	}}
	r := newTestRunner(t, gen, &stubJudge{})

	// When running
	rep, err := r.Run(ctx, questions(4))

	// Then the run stops, but every question is still accounted for
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, rep.Results, 4)
	assert.Equal(t, domain.OutcomeFaithful, rep.Results[0].Judgment.Outcome)
	for _, res := range rep.Results[1:] {
		assert.Equal(t, domain.OutcomeError, res.Judgment.Outcome, res.Question.ID)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
	assert.Len(t, gen.modes, 2, "no generation after cancellation")
	assert.Equal(t, StateReporting, r.State())
}

func TestRunner_Run_OnlyOnce(t *testing.T) {
	r := newTestRunner(t, &stubGenerator{}, &stubJudge{})

	_, err := r.Run(context.Background(), questions(1))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), questions(1))
	assert.Error(t, err)
}

func TestRunner_Run_Concurrent(t *testing.T) {
	// Given a bounded pool and slow answers
	var inFlight, peak atomic.Int32
	gen := &stubGenerator{hook: func(context.Context, domain.Question) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}}
	judge := &stubJudge{verdicts: map[string]bool{"q2": true, "q7": true}}
	r := newTestRunner(t, gen, judge, WithConcurrency(3))

	// When running many questions
	rep, err := r.Run(context.Background(), questions(12))

	// Then order is preserved and the limit holds
	require.NoError(t, err)
	require.Len(t, rep.Results, 12)
	for i, res := range rep.Results {
		assert.Equal(t, fmt.Sprintf("q%d", i+1), res.Question.ID)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 2, rep.Summary.Hallucinated)
	assert.Equal(t, 12, rep.Summary.Judged)
}

func TestRunner_Run_LogsStateTransitions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	r := newTestRunner(t, &stubGenerator{}, &stubJudge{}, WithLogger(logger))

	_, err := r.Run(context.Background(), questions(2))
	require.NoError(t, err)

	out := buf.String()
	order := []string{"to=generating", "to=judging", "to=reporting", "to=done"}
	last := -1
	for _, s := range order {
		idx := strings.Index(out, s)
		require.GreaterOrEqual(t, idx, 0, "missing %s", s)
		assert.Greater(t, idx, last, "%s out of order", s)
		last = idx
	}
	assert.Equal(t, 1, strings.Count(out, "to=judging"), "state never repeats")
}

func TestRunner_Run_MetricsAndSpans(t *testing.T) {
	// Given a metrics collector and a recording tracer
	metrics := middleware.NewPrometheusMetrics()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	judge := &stubJudge{verdicts: map[string]bool{"q1": true}}
	r := newTestRunner(t, &stubGenerator{}, judge,
		WithMetrics(metrics),
		WithTracer(tp.Tracer("test")),
	)

	// When running
	_, err := r.Run(context.Background(), questions(2))
	require.NoError(t, err)

	// Then outcome counters and the rate gauge are exported
	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, metrics.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	data := string(raw)
	assert.Contains(t, data, `hallucheck_outcomes_total{mode="baseline",outcome="hallucinated"} 1`)
	assert.Contains(t, data, `hallucheck_outcomes_total{mode="baseline",outcome="faithful"} 1`)
	assert.Contains(t, data, `hallucheck_hallucination_rate{mode="baseline"} 0.5`)
	assert.Contains(t, data, `hallucheck_stage_duration_seconds_count{stage="judging"} 2`)

	// And one run span parents one span per question
	spans := recorder.Ended()
	names := map[string]int{}
	for _, s := range spans {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["hallucheck.run"])
	assert.Equal(t, 2, names["hallucheck.question"])
}

// TestEvaluate_EndToEnd wires the real answerer, judge and reporter over
// scripted model clients.
func TestEvaluate_EndToEnd(t *testing.T) {
	// Given a three-question dataset
	ds, err := dataset.Parse("e2e.jsonl", strings.NewReader(strings.Join([]string{
		`{"id":"q1","question":"What is the capital of France?","answer":"Paris"}`,
		`{"id":"q2","question":"Who wrote Truyện Kiều?","answer":"Nguyễn Du"}`,
		`{"id":"q3","question":"What does CPU stand for?","answer":"Central Processing Unit"}`,
	}, "\n")), dataset.FormatJSONL, nil)
	require.NoError(t, err)

	// And an answer model plus a judge that replies NO, YES and garbage
	answerLLM := testutils.NewMockLLMClient("sonar").
		AddResponse(testutils.MockResponse{Pattern: "capital of France", Response: "Paris"}).
		AddResponse(testutils.MockResponse{Pattern: "Truyện Kiều", Response: "Hồ Xuân Hương"}).
		AddResponse(testutils.MockResponse{Pattern: "CPU", Response: "Central Processing Unit"})
	judgeLLM := testutils.NewMockLLMClient("gpt-4.1").
		AddResponse(testutils.MockResponse{Pattern: "capital of France", Response: "NO"}).
		AddResponse(testutils.MockResponse{Pattern: "Truyện Kiều", Response: "YES - the author is Nguyễn Du"}).
		AddResponse(testutils.MockResponse{Pattern: "CPU", Response: "I am not sure what to say."})

	answerer, err := units.NewAnswererUnit(answerLLM, units.DefaultAnswererConfig())
	require.NoError(t, err)
	judge, err := units.NewHallucinationJudgeUnit(judgeLLM, units.DefaultHallucinationJudgeConfig())
	require.NoError(t, err)

	r, err := NewRunner(answerer, judge, RunInfo{
		RunID:          "e2e",
		Mode:           domain.ModeBaseline,
		Dataset:        ds.Name,
		DatasetVersion: ds.Version,
		AnswerModel:    answerLLM.GetModel(),
		JudgeModel:     judgeLLM.GetModel(),
	})
	require.NoError(t, err)

	// When evaluating in baseline mode
	rep, err := r.Run(context.Background(), ds.Questions)
	require.NoError(t, err)

	// Then two are judged, one hallucinated, and the third is unjudged
	assert.Equal(t, 2, rep.Summary.Judged)
	assert.Equal(t, 1, rep.Summary.Hallucinated)
	assert.Equal(t, 1, rep.Summary.Unjudged)
	rate, ok := rep.Summary.Rate()
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-9)
	assert.Equal(t, 3, answerLLM.CallCount())
	assert.Equal(t, 3, judgeLLM.CallCount())

	// And the verbose report shows it
	var out bytes.Buffer
	require.NoError(t, report.Render(&out, rep, report.Options{Verbose: true, NoColor: true}))
	text := out.String()
	assert.Contains(t, text, "0.50 (50.00%)")
	assert.Contains(t, text, "unjudged")
	assert.Contains(t, text, "the author is Nguyễn Du")
	assert.Contains(t, text, "Hồ Xuân Hương")
}

func TestEvaluate_LimitAndRAGContext(t *testing.T) {
	// Given the built-in dataset limited to two questions
	ds, err := dataset.Default(nil)
	require.NoError(t, err)
	qs := dataset.Limit(ds.Questions, 2)
	require.Len(t, qs, 2)

	answerLLM := testutils.NewMockLLMClient("sonar")
	judgeLLM := testutils.NewMockLLMClient("gpt-4.1").
		AddResponse(testutils.MockResponse{Response: "NO"})
	answerer, err := units.NewAnswererUnit(answerLLM, units.DefaultAnswererConfig())
	require.NoError(t, err)
	judge, err := units.NewHallucinationJudgeUnit(judgeLLM, units.DefaultHallucinationJudgeConfig())
	require.NoError(t, err)

	for _, mode := range domain.Modes() {
		t.Run(string(mode), func(t *testing.T) {
			before := len(answerLLM.Calls())
			r, err := NewRunner(answerer, judge, RunInfo{Mode: mode})
			require.NoError(t, err)

			// When running in this mode
			rep, err := r.Run(context.Background(), qs)

			// Then only the first two questions are processed, in order
			require.NoError(t, err)
			require.Len(t, rep.Results, 2)
			assert.Equal(t, qs[0].ID, rep.Results[0].Question.ID)
			assert.Equal(t, qs[1].ID, rep.Results[1].Question.ID)

			// And the ground-truth context reaches the prompt only in rag-assisted mode
			calls := answerLLM.Calls()[before:]
			require.Len(t, calls, 2)
			for i, call := range calls {
				hasContext := strings.Contains(call.Prompt, "CONTEXT:") && strings.Contains(call.Prompt, qs[i].Context)
				assert.Equal(t, mode == domain.ModeRAGAssisted, hasContext, "mode %s question %s", mode, qs[i].ID)
			}
		})
	}
}

func TestRunner_Run_EmptyDataset(t *testing.T) {
	r := newTestRunner(t, &stubGenerator{}, &stubJudge{})

	rep, err := r.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, rep.Results)
	_, ok := rep.Summary.Rate()
	assert.False(t, ok)
}
