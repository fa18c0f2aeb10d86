package units

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/ahrav/hallucheck/infrastructure/llm"
	"github.com/ahrav/hallucheck/internal/domain"
	"github.com/ahrav/hallucheck/internal/ports"
)

var _ ports.AnswerGenerator = (*AnswererUnit)(nil)

// DefaultAnswerMaxTokens bounds the length of a bilingual answer.
const DefaultAnswerMaxTokens = 1024

// System instructions per mode.
const (
	BaselineSystemPrompt = "You are a helpful AI assistant. Answer the user's question, then " +
		"translate it to Vietnamese."

	PromptTunedSystemPrompt = "You are a hyper-precise bilingual expert. You will strictly follow a " +
		"two-part format. First, provide a complete, factual answer in English " +
		"inside <english_answer> XML tags. Second, provide a direct and accurate " +
		"translation of that English answer into Vietnamese inside " +
		"<vietnamese_translation> XML tags. Do not add any other commentary. " +
		"Here is an example of the required format:\n\n" +
		"EXAMPLE QUESTION: What is a CPU?\n" +
		"EXAMPLE RESPONSE:\n" +
		"<english_answer>\nA CPU, or Central Processing Unit, is the primary " +
		"component of a computer that executes instructions.\n" +
		"</english_answer>\n" +
		"<vietnamese_translation>\n" +
		"CPU, hay Bộ xử lý trung tâm, là thành phần chính của máy tính thực hiện " +
		"các lệnh.\n" +
		"</vietnamese_translation>"

	RAGSystemPrompt = "You are a hyper-precise bilingual expert. Use ONLY the provided context " +
		"to answer the question. Strictly follow the two-part format: first, " +
		"the English answer in <english_answer> tags. Second, the Vietnamese " +
		"translation in <vietnamese_translation> tags."
)

// User message templates. The rag-assisted template embeds the context
// verbatim; the others carry only the question.
const (
	questionTemplate = "{{trim .Text}}"
	ragTemplate      = "CONTEXT:\n---\n{{.Context}}\n---\n\nQUESTION: {{trim .Text}}"
)

// AnswererConfig configures the AnswererUnit.
type AnswererConfig struct {
	// MaxTokens limits the length of each answer.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=16,max=16000"`

	// Temperature is left to the provider default when nil.
	Temperature *float64 `yaml:"temperature" json:"temperature" validate:"omitempty,min=0,max=2"`

	// SystemPrompts overrides the built-in instruction for individual modes.
	SystemPrompts map[domain.Mode]string `yaml:"system_prompts" json:"system_prompts" validate:"omitempty,dive,keys,required,endkeys,min=10"`
}

// DefaultAnswererConfig returns the configuration used by the CLI.
func DefaultAnswererConfig() AnswererConfig {
	return AnswererConfig{MaxTokens: DefaultAnswerMaxTokens}
}

type modePrompt struct {
	system string
	user   *template.Template
}

// AnswererUnit queries the model under test once per question. It is
// stateless after construction and safe for concurrent use.
type AnswererUnit struct {
	config    AnswererConfig
	llmClient ports.LLMClient
	prompts   map[domain.Mode]modePrompt
	now       func() time.Time
}

// NewAnswererUnit validates config and compiles the prompt templates for
// every mode.
func NewAnswererUnit(llmClient ports.LLMClient, config AnswererConfig) (*AnswererUnit, error) {
	if llmClient == nil {
		return nil, ErrLLMClientNil
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	systems := map[domain.Mode]string{
		domain.ModeBaseline:    BaselineSystemPrompt,
		domain.ModePromptTuned: PromptTunedSystemPrompt,
		domain.ModeRAGAssisted: RAGSystemPrompt,
	}
	for mode, text := range config.SystemPrompts {
		if !mode.Valid() {
			return nil, fmt.Errorf("%w: system prompt for %w", ErrConfigValidation, domain.ErrInvalidMode)
		}
		systems[mode] = text
	}

	prompts := make(map[domain.Mode]modePrompt, len(systems))
	for mode, system := range systems {
		src := questionTemplate
		if mode.UsesContext() {
			src = ragTemplate
		}
		tmpl, err := parsePrompt(string(mode), src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt template for %s: %w", mode, err)
		}
		prompts[mode] = modePrompt{system: system, user: tmpl}
	}

	return &AnswererUnit{
		config:    config,
		llmClient: llmClient,
		prompts:   prompts,
		now:       time.Now,
	}, nil
}

// BuildPrompt renders the system instruction and user message for q under
// mode without calling the model.
func (au *AnswererUnit) BuildPrompt(q domain.Question, mode domain.Mode) (system, user string, err error) {
	p, ok := au.prompts[mode]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	if strings.TrimSpace(q.Text) == "" {
		return "", "", fmt.Errorf("question %s: %w", q.ID, ErrQuestionEmpty)
	}
	if mode.UsesContext() && strings.TrimSpace(q.Context) == "" {
		return "", "", fmt.Errorf("question %s: %w", q.ID, ErrContextMissing)
	}

	var buf bytes.Buffer
	if err := p.user.Execute(&buf, q); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTemplateExecution, err)
	}
	return p.system, buf.String(), nil
}

// Generate sends one request for q and returns the raw answer. Failures are
// *ports.TransportError or *ports.MalformedResponseError.
func (au *AnswererUnit) Generate(ctx context.Context, q domain.Question, mode domain.Mode) (domain.AnswerRecord, error) {
	system, prompt, err := au.BuildPrompt(q, mode)
	if err != nil {
		return domain.AnswerRecord{}, err
	}

	opts := map[string]any{
		"system":     system,
		"max_tokens": au.config.MaxTokens,
	}
	if au.config.Temperature != nil {
		opts["temperature"] = *au.config.Temperature
	}

	model := au.llmClient.GetModel()
	text, tokensIn, tokensOut, err := au.llmClient.CompleteWithUsage(ctx, prompt, opts)
	if err != nil {
		return domain.AnswerRecord{}, llm.AsPortError(model, "answer", err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.AnswerRecord{}, llm.AsPortError(model, "answer", llm.ErrEmptyResponse)
	}

	return domain.AnswerRecord{
		QuestionID: q.ID,
		Mode:       mode,
		Text:       text,
		Model:      model,
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
		Timestamp:  au.now().UTC(),
	}, nil
}
