package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/hallucheck/infrastructure/llm"
	"github.com/ahrav/hallucheck/internal/domain"
	"github.com/ahrav/hallucheck/internal/ports"
	"github.com/ahrav/hallucheck/internal/testutils"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name          string
		response      string
		wantOK        bool
		wantHalluc    bool
		wantRationale string
	}{
		{name: "bare YES", response: "YES", wantOK: true, wantHalluc: true},
		{name: "bare NO", response: "NO", wantOK: true},
		{name: "lowercase with period", response: "no.", wantOK: true},
		{name: "mixed case with rationale", response: "Yes - the answer names Sydney.", wantOK: true, wantHalluc: true, wantRationale: "the answer names Sydney."},
		{name: "leading whitespace and bold", response: "\n  **NO**", wantOK: true},
		{name: "quoted", response: "'YES'", wantOK: true, wantHalluc: true},
		{name: "xml tag wrapper", response: "<verdict>NO</verdict>", wantOK: true},
		{name: "vietnamese yes", response: "CÓ", wantOK: true, wantHalluc: true},
		{name: "vietnamese no lowercase", response: "không, câu trả lời đúng", wantOK: true, wantRationale: "câu trả lời đúng"},
		{name: "decomposed vietnamese", response: "KHO\u0302NG", wantOK: true},
		{name: "garbage", response: "I cannot determine this."},
		{name: "empty", response: ""},
		{name: "only punctuation", response: "...!"},
		{name: "verdict word not first", response: "Answer: YES"},
		{name: "prefix of a longer word", response: "Nobody knows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			halluc, rationale, ok := ParseVerdict(tt.response)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantHalluc, halluc)
			assert.Equal(t, tt.wantRationale, rationale)
		})
	}
}

func TestNewHallucinationJudgeUnit(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		_, err := NewHallucinationJudgeUnit(testutils.NewMockLLMClient("gpt-4.1"), DefaultHallucinationJudgeConfig())
		assert.NoError(t, err)
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := NewHallucinationJudgeUnit(nil, DefaultHallucinationJudgeConfig())
		assert.ErrorIs(t, err, ErrLLMClientNil)
	})

	t.Run("short prompt", func(t *testing.T) {
		cfg := DefaultHallucinationJudgeConfig()
		cfg.Prompt = "YES or NO?"
		_, err := NewHallucinationJudgeUnit(testutils.NewMockLLMClient("m"), cfg)
		assert.ErrorIs(t, err, ErrConfigValidation)
	})

	t.Run("unknown template field fails at render", func(t *testing.T) {
		cfg := DefaultHallucinationJudgeConfig()
		cfg.Prompt = "Is {{.Answer}} wrong given {{.Missing}}? Reply YES or NO."
		unit, err := NewHallucinationJudgeUnit(testutils.NewMockLLMClient("m"), cfg)
		require.NoError(t, err)

		_, err = unit.BuildPrompt(franceQuestion, domain.AnswerRecord{Text: "Paris"})
		assert.ErrorIs(t, err, ErrTemplateExecution)
	})
}

func TestHallucinationJudgeUnit_BuildPrompt(t *testing.T) {
	unit, err := NewHallucinationJudgeUnit(testutils.NewMockLLMClient("gpt-4.1"), DefaultHallucinationJudgeConfig())
	require.NoError(t, err)

	prompt, err := unit.BuildPrompt(franceQuestion, domain.AnswerRecord{Text: "Lyon"})

	require.NoError(t, err)
	assert.Contains(t, prompt, "You are a meticulous fact-checker.")
	assert.Contains(t, prompt, `Question: "`+franceQuestion.Text+`"`)
	assert.Contains(t, prompt, `Ground Truth Answer: "`+franceQuestion.Reference+`"`)
	assert.Contains(t, prompt, `Model Answer: "Lyon"`)
}

func TestHallucinationJudgeUnit_Judge(t *testing.T) {
	answer := func(text string) domain.AnswerRecord {
		return domain.AnswerRecord{QuestionID: franceQuestion.ID, Mode: domain.ModeBaseline, Text: text}
	}

	tests := []struct {
		name        string
		answer      string
		reply       string
		wantOutcome domain.Outcome
		wantParse   bool
	}{
		{name: "faithful", answer: "Paris. Paris.", reply: "NO", wantOutcome: domain.OutcomeFaithful},
		{name: "hallucinated", answer: "Lyon. Lyon.", reply: "YES", wantOutcome: domain.OutcomeHallucinated},
		{name: "unparseable reply", answer: "Paris.", reply: "Maybe?", wantOutcome: domain.OutcomeUnjudged, wantParse: true},
		{name: "empty reply", answer: "Paris.", reply: "", wantOutcome: domain.OutcomeUnjudged, wantParse: true},
		{name: "blank reply", answer: "Paris.", reply: " \n\t", wantOutcome: domain.OutcomeUnjudged, wantParse: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a judge that replies with a fixed verdict
			client := testutils.NewMockLLMClient("gpt-4.1").
				AddResponse(testutils.MockResponse{Pattern: "Model Answer", Response: tt.reply})
			unit, err := NewHallucinationJudgeUnit(client, DefaultHallucinationJudgeConfig())
			require.NoError(t, err)

			// When judging
			rec, err := unit.Judge(context.Background(), franceQuestion, answer(tt.answer))

			// Then the outcome and raw reply are recorded
			assert.Equal(t, tt.wantOutcome, rec.Outcome)
			assert.Equal(t, franceQuestion.ID, rec.QuestionID)
			assert.Equal(t, tt.reply, rec.Raw)
			assert.GreaterOrEqual(t, rec.Similarity, 0.0)
			assert.LessOrEqual(t, rec.Similarity, 1.0)
			if tt.wantParse {
				var parseErr *ports.JudgeParseError
				require.ErrorAs(t, err, &parseErr)
				assert.Equal(t, franceQuestion.ID, parseErr.QuestionID)
				assert.ErrorIs(t, err, ports.ErrNoVerdict)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestHallucinationJudgeUnit_Judge_DeterministicOptions(t *testing.T) {
	// Given a judge
	client := testutils.NewMockLLMClient("gpt-4.1").
		AddResponse(testutils.MockResponse{Pattern: "Model Answer", Response: "NO"})
	unit, err := NewHallucinationJudgeUnit(client, DefaultHallucinationJudgeConfig())
	require.NoError(t, err)

	// When judging one answer
	_, err = unit.Judge(context.Background(), franceQuestion, domain.AnswerRecord{Text: "Paris"})

	// Then the request uses temperature 0, a small token cap and no system prompt
	require.NoError(t, err)
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 0.0, calls[0].Options["temperature"], 0)
	assert.Equal(t, DefaultJudgeMaxTokens, calls[0].Options["max_tokens"])
	assert.NotContains(t, calls[0].Options, "system")
}

func TestHallucinationJudgeUnit_Judge_TransportError(t *testing.T) {
	// Given a judge whose provider rejects the key
	client := testutils.NewMockLLMClient("gpt-4.1").
		AddResponse(testutils.MockResponse{
			Pattern: "Model Answer",
			Err:     llm.NewProviderError("openai", llm.ErrorTypeAuthentication, 401, "bad key", nil),
		})
	unit, err := NewHallucinationJudgeUnit(client, DefaultHallucinationJudgeConfig())
	require.NoError(t, err)

	// When judging
	_, err = unit.Judge(context.Background(), franceQuestion, domain.AnswerRecord{Text: "Paris"})

	// Then a transport error comes back, never a verdict
	var transport *ports.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "judge", transport.Operation)
	assert.Equal(t, "gpt-4.1", transport.Model)
	assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
}

func TestHallucinationJudgeUnit_Judge_EmptyBodyIsUnjudged(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantOutcome domain.Outcome
	}{
		{name: "empty content", err: llm.ErrEmptyResponse, wantOutcome: domain.OutcomeUnjudged},
		{name: "no choices", err: llm.ErrNoResponseChoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a provider whose reply carries no text
			client := testutils.NewMockLLMClient("gpt-4.1").
				AddResponse(testutils.MockResponse{Pattern: "Model Answer", Err: tt.err})
			unit, err := NewHallucinationJudgeUnit(client, DefaultHallucinationJudgeConfig())
			require.NoError(t, err)

			// When judging
			rec, err := unit.Judge(context.Background(), franceQuestion, domain.AnswerRecord{Text: "Paris"})

			// Then an empty reply is unjudged while a missing choice is malformed
			if tt.wantOutcome == domain.OutcomeUnjudged {
				assert.Equal(t, domain.OutcomeUnjudged, rec.Outcome)
				assert.Empty(t, rec.Raw)
				assert.ErrorIs(t, err, ports.ErrNoVerdict)
				return
			}
			var malformed *ports.MalformedResponseError
			require.ErrorAs(t, err, &malformed)
		})
	}
}
