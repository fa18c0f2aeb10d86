package ports

import (
	"context"

	"github.com/ahrav/hallucheck/internal/domain"
)

// AnswerGenerator produces one answer per question for the run's mode.
// Implementations must issue at most one logical request per call and
// return *TransportError or *MalformedResponseError on failure.
type AnswerGenerator interface {
	Generate(ctx context.Context, q domain.Question, mode domain.Mode) (domain.AnswerRecord, error)
}

// HallucinationJudge classifies an answer as faithful or hallucinated.
// A reply without a verdict token yields *JudgeParseError; the caller marks
// the question unjudged.
type HallucinationJudge interface {
	Judge(ctx context.Context, q domain.Question, answer domain.AnswerRecord) (domain.JudgmentRecord, error)
}
