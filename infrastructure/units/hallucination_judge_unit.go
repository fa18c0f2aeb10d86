package units

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ahrav/hallucheck/infrastructure/llm"
	"github.com/ahrav/hallucheck/internal/domain"
	"github.com/ahrav/hallucheck/internal/ports"
)

var _ ports.HallucinationJudge = (*HallucinationJudgeUnit)(nil)

// Judge defaults. The reply is a single verdict word, optionally followed by
// a short reason.
const (
	DefaultJudgeMaxTokens   = 16
	DefaultJudgeTemperature = 0.0
)

// DefaultJudgePrompt is the fact-checking instruction. It is rendered with
// the question, the reference answer and the model's answer.
const DefaultJudgePrompt = "You are a meticulous fact-checker. Compare the 'Model Answer' to the " +
	"'Ground Truth Answer'. A hallucination is a significant factual error, " +
	"contradiction, or failure to follow the translation instruction in EITHER " +
	"the English or Vietnamese part. Respond with ONLY 'YES' if it's a " +
	"hallucination or 'NO' if it is factually consistent and correctly " +
	"formatted/translated.\n\n" +
	"Question: \"{{.Question}}\"\n\n" +
	"Ground Truth Answer: \"{{.Reference}}\"\n\n" +
	"Model Answer: \"{{trim .Answer}}\""

// HallucinationJudgeConfig configures the HallucinationJudgeUnit.
type HallucinationJudgeConfig struct {
	// Prompt is a text/template using {{.Question}}, {{.Reference}} and
	// {{.Answer}}.
	Prompt string `yaml:"prompt" json:"prompt" validate:"required,min=20"`

	// MaxTokens caps the reply length.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=1,max=2000"`

	// Temperature should stay at 0 for reproducible verdicts.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`
}

// DefaultHallucinationJudgeConfig returns the configuration used by the CLI.
func DefaultHallucinationJudgeConfig() HallucinationJudgeConfig {
	return HallucinationJudgeConfig{
		Prompt:      DefaultJudgePrompt,
		MaxTokens:   DefaultJudgeMaxTokens,
		Temperature: DefaultJudgeTemperature,
	}
}

type judgePromptData struct {
	Question  string
	Reference string
	Answer    string
}

// HallucinationJudgeUnit asks a second model whether an answer contradicts
// the reference. It is stateless after construction and safe for concurrent
// use.
type HallucinationJudgeUnit struct {
	config         HallucinationJudgeConfig
	llmClient      ports.LLMClient
	promptTemplate *template.Template
}

// NewHallucinationJudgeUnit validates config and compiles the prompt.
func NewHallucinationJudgeUnit(llmClient ports.LLMClient, config HallucinationJudgeConfig) (*HallucinationJudgeUnit, error) {
	if llmClient == nil {
		return nil, ErrLLMClientNil
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	tmpl, err := parsePrompt("judge", config.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse judge prompt template: %w", err)
	}

	return &HallucinationJudgeUnit{
		config:         config,
		llmClient:      llmClient,
		promptTemplate: tmpl,
	}, nil
}

// BuildPrompt renders the judge prompt for one answer.
func (ju *HallucinationJudgeUnit) BuildPrompt(q domain.Question, answer domain.AnswerRecord) (string, error) {
	var buf bytes.Buffer
	data := judgePromptData{Question: q.Text, Reference: q.Reference, Answer: answer.Text}
	if err := ju.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateExecution, err)
	}
	return buf.String(), nil
}

// Judge classifies answer against q's reference.
//
// A reply without a recognizable verdict, including an empty or blank one,
// returns an unjudged record together with a *ports.JudgeParseError.
// Transport failures return *ports.TransportError; a response with no
// choices at all returns *ports.MalformedResponseError.
func (ju *HallucinationJudgeUnit) Judge(ctx context.Context, q domain.Question, answer domain.AnswerRecord) (domain.JudgmentRecord, error) {
	prompt, err := ju.BuildPrompt(q, answer)
	if err != nil {
		return domain.JudgmentRecord{}, err
	}

	opts := map[string]any{
		"temperature": ju.config.Temperature,
		"max_tokens":  ju.config.MaxTokens,
	}

	model := ju.llmClient.GetModel()
	raw, _, _, err := ju.llmClient.CompleteWithUsage(ctx, prompt, opts)
	if err != nil && !errors.Is(err, llm.ErrEmptyResponse) {
		return domain.JudgmentRecord{}, llm.AsPortError(model, "judge", err)
	}

	similarity := Similarity(answer.Text, q.Reference)

	hallucinated, rationale, ok := ParseVerdict(raw)
	if !ok {
		return domain.JudgmentRecord{
			QuestionID: q.ID,
			Outcome:    domain.OutcomeUnjudged,
			Raw:        raw,
			Similarity: similarity,
		}, ports.NewJudgeParseError(q.ID, raw)
	}

	rec := domain.NewVerdict(q.ID, hallucinated, rationale, raw)
	rec.Similarity = similarity
	return rec, nil
}

// ParseVerdict extracts a YES/NO verdict from a judge reply. Leading
// whitespace, punctuation and markup tags are skipped, the first word is
// case-folded and compared against YES/NO and the Vietnamese CÓ/KHÔNG. The
// text after the verdict word becomes the rationale. ok is false when the
// first word is none of these.
func ParseVerdict(response string) (hallucinated bool, rationale string, ok bool) {
	s := stripLeadingMarkup(norm.NFC.String(response))

	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r)
	})
	word, rest := s, ""
	if end >= 0 {
		word, rest = s[:end], s[end:]
	}

	switch fold(word) {
	case "yes", "có":
		hallucinated = true
	case "no", "không":
		hallucinated = false
	default:
		return false, "", false
	}

	rationale = strings.TrimSpace(stripLeadingMarkup(rest))
	return hallucinated, rationale, true
}

func isNoise(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// stripLeadingMarkup drops leading noise runes and <tag> prefixes such as
// "**", "> " or "<verdict>".
func stripLeadingMarkup(s string) string {
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return r != '<' && isNoise(r) })
		if !strings.HasPrefix(s, "<") {
			return s
		}
		closing := strings.IndexByte(s, '>')
		if closing < 0 {
			closing = 0
		}
		s = s[closing+1:]
	}
}
