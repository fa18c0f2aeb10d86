// Package domain contains pure, dependency-free domain models and types
// for the hallucination evaluation harness.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Question is a single bilingual evaluation item. Questions are loaded once
// per run and never mutated.
type Question struct {
	// ID uniquely identifies the question within a dataset.
	ID string `json:"id" yaml:"id"`
	// Text is the question as sent to the answering model.
	Text string `json:"question" yaml:"question"`
	// Context is the ground-truth snippet injected in rag-assisted mode.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
	// Reference is the expected answer handed to the judge.
	Reference string `json:"answer" yaml:"answer"`
}

// Mode is the prompting strategy applied uniformly across one run.
type Mode string

// Supported prompting modes.
const (
	ModeBaseline    Mode = "baseline"
	ModePromptTuned Mode = "prompt-tuned"
	ModeRAGAssisted Mode = "rag-assisted"
)

// Modes lists every supported mode in display order.
func Modes() []Mode { return []Mode{ModeBaseline, ModePromptTuned, ModeRAGAssisted} }

// ParseMode converts user input into a Mode. Matching is case-insensitive
// and ignores surrounding whitespace.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q (want one of %s)", ErrInvalidMode, s, modeList())
	}
	return m, nil
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeBaseline, ModePromptTuned, ModeRAGAssisted:
		return true
	default:
		return false
	}
}

// UsesContext reports whether the mode injects ground-truth context.
func (m Mode) UsesContext() bool { return m == ModeRAGAssisted }

func (m Mode) String() string { return string(m) }

func modeList() string {
	names := make([]string, 0, 3)
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return strings.Join(names, "|")
}

// AnswerRecord is the raw output of the answering model for one question.
// It is created by the answer generator and never mutated afterwards.
type AnswerRecord struct {
	QuestionID string    `json:"question_id"`
	Mode       Mode      `json:"mode"`
	Text       string    `json:"text"`
	Model      string    `json:"model"`
	TokensIn   int       `json:"tokens_in"`
	TokensOut  int       `json:"tokens_out"`
	Timestamp  time.Time `json:"timestamp"`
}
