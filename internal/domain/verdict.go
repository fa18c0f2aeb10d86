package domain

// Outcome is the final classification of one question in a run. Every
// processed question ends in exactly one outcome.
type Outcome string

// Possible outcomes.
const (
	// OutcomeFaithful means the judge found the answer consistent with the
	// reference.
	OutcomeFaithful Outcome = "faithful"
	// OutcomeHallucinated means the judge flagged a factual error.
	OutcomeHallucinated Outcome = "hallucinated"
	// OutcomeError means the answer or judge request failed in transport or
	// returned a malformed body.
	OutcomeError Outcome = "error"
	// OutcomeUnjudged means the judge replied but no verdict token could be
	// extracted.
	OutcomeUnjudged Outcome = "unjudged"
)

// Judged reports whether the outcome counts toward the hallucination rate.
func (o Outcome) Judged() bool {
	return o == OutcomeFaithful || o == OutcomeHallucinated
}

// JudgmentRecord captures the judge's decision about one answer.
type JudgmentRecord struct {
	// QuestionID links the judgment back to its question.
	QuestionID string `json:"question_id"`
	// Outcome is the classified result.
	Outcome Outcome `json:"outcome"`
	// Hallucinated mirrors Outcome == OutcomeHallucinated.
	Hallucinated bool `json:"hallucinated"`
	// Rationale is whatever text the judge gave after its verdict token, or
	// the error message for error outcomes.
	Rationale string `json:"rationale,omitempty"`
	// Raw is the unmodified judge response.
	Raw string `json:"raw,omitempty"`
	// Similarity is the normalized edit similarity between the answer and
	// the reference, in [0, 1]. It is informational only.
	Similarity float64 `json:"similarity"`
}

// NewVerdict builds a judged record from a boolean verdict.
func NewVerdict(questionID string, hallucinated bool, rationale, raw string) JudgmentRecord {
	outcome := OutcomeFaithful
	if hallucinated {
		outcome = OutcomeHallucinated
	}
	return JudgmentRecord{
		QuestionID:   questionID,
		Outcome:      outcome,
		Hallucinated: hallucinated,
		Rationale:    rationale,
		Raw:          raw,
	}
}

// Result ties together everything produced for a single question.
type Result struct {
	Question Question       `json:"question"`
	Answer   *AnswerRecord  `json:"answer,omitempty"`
	Judgment JudgmentRecord `json:"judgment"`
	// Err holds the per-question failure for error and unjudged outcomes.
	Err error `json:"-"`
}

// RunSummary aggregates a run. It is derived from results and holds no
// independent state.
type RunSummary struct {
	Total        int `json:"total"`
	Judged       int `json:"judged"`
	Hallucinated int `json:"hallucinated"`
	Faithful     int `json:"faithful"`
	Errors       int `json:"errors"`
	Unjudged     int `json:"unjudged"`
}

// Summarize counts outcomes across results.
func Summarize(results []Result) RunSummary {
	s := RunSummary{Total: len(results)}
	for _, r := range results {
		switch r.Judgment.Outcome {
		case OutcomeFaithful:
			s.Faithful++
			s.Judged++
		case OutcomeHallucinated:
			s.Hallucinated++
			s.Judged++
		case OutcomeUnjudged:
			s.Unjudged++
		default:
			s.Errors++
		}
	}
	return s
}

// Rate returns hallucinated/judged. The boolean is false when nothing was
// judged, in which case the rate is undefined.
func (s RunSummary) Rate() (float64, bool) {
	if s.Judged == 0 {
		return 0, false
	}
	return float64(s.Hallucinated) / float64(s.Judged), true
}
