// Package units provides the two LLM-backed pipeline stages of the harness:
// the AnswererUnit that queries the model under test and the
// HallucinationJudgeUnit that fact-checks its answers.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors shared by the units.
var (
	// ErrLLMClientNil is returned when a unit is built without a client.
	ErrLLMClientNil = errors.New("LLM client cannot be nil")
	// ErrConfigValidation wraps struct validation failures.
	ErrConfigValidation = errors.New("configuration validation failed")
	// ErrTemplateExecution is returned when a prompt template cannot render.
	ErrTemplateExecution = errors.New("failed to execute prompt template")
	// ErrQuestionEmpty is returned for a question with no text.
	ErrQuestionEmpty = errors.New("question cannot be empty")
	// ErrContextMissing is returned in rag-assisted mode when a question has
	// no context to inject.
	ErrContextMissing = errors.New("question has no context for rag-assisted mode")
)

// Package-level validator instance for configuration validation.
var validate = validator.New()
