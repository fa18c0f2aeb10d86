package dataset

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/hallucheck/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestLoad_JSONL(t *testing.T) {
	// Given a JSONL file with a blank line, a malformed line and a row
	// missing its answer
	path := writeFile(t, "qa.jsonl", strings.Join([]string{
		`{"question": "What is the capital of France?", "answer": "Paris"}`,
		``,
		`{"question": "broken",`,
		`{"question": "No answer here"}`,
		`{"id": "kieu", "question": "Who wrote Truyện Kiều?", "answer": "Nguyễn Du", "context": "Nguyễn Du (1766-1820) wrote Truyện Kiều."}`,
	}, "\n"))
	logger, logs := captureLogger()

	// When loading it
	ds, err := Load(path, logger)

	// Then valid rows load in order and bad rows are skipped with warnings
	require.NoError(t, err)
	require.Len(t, ds.Questions, 2)
	assert.Equal(t, domain.Question{
		ID:        "q1",
		Text:      "What is the capital of France?",
		Context:   "Paris",
		Reference: "Paris",
	}, ds.Questions[0], "context falls back to the reference answer")
	assert.Equal(t, "kieu", ds.Questions[1].ID)
	assert.Equal(t, "Nguyễn Du (1766-1820) wrote Truyện Kiều.", ds.Questions[1].Context)
	assert.Equal(t, path, ds.Name)
	assert.Len(t, ds.Version, 12)

	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, "skipping malformed line"))
	assert.Contains(t, out, "line=3")
	assert.Contains(t, out, "line=4")
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "qa.yaml", `
questions:
  - id: fr
    question: "Thủ đô của Pháp là gì?"
    answer: "Paris"
  - question: "What is the chemical symbol for gold?"
    answer: "Au"
    context: "Gold has the symbol Au."
`)

	ds, err := Load(path, nil)

	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "fr", ds.Questions[0].ID)
	assert.Equal(t, "q2", ds.Questions[1].ID)
	assert.Equal(t, "Gold has the symbol Au.", ds.Questions[1].Context)
}

func TestLoad_YAMLRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "qa.yml", "questions:\n  - question: q\n    answer: a\n    difficulty: hard\n")

	_, err := Load(path, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "difficulty")
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.jsonl"), nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no valid rows", func(t *testing.T) {
		logger, _ := captureLogger()
		_, err := Load(writeFile(t, "bad.jsonl", "not json\n{}\n"), logger)
		assert.ErrorIs(t, err, ErrEmpty)
	})
}

func TestLoad_DuplicateIDsKeepFirst(t *testing.T) {
	logger, logs := captureLogger()
	path := writeFile(t, "dup.jsonl", `{"id":"a","question":"one","answer":"1"}
{"id":"a","question":"two","answer":"2"}
`)

	ds, err := Load(path, logger)

	require.NoError(t, err)
	require.Len(t, ds.Questions, 1)
	assert.Equal(t, "one", ds.Questions[0].Text)
	assert.Contains(t, logs.String(), "skipping duplicate question id")
}

func TestLoad_GeneratedIDsAvoidExplicitOnes(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		wantIDs []string
	}{
		{
			name: "explicit id before generated",
			lines: []string{
				`{"id":"q2","question":"A?","answer":"a"}`,
				`{"question":"B?","answer":"b"}`,
			},
			wantIDs: []string{"q2", "q3"},
		},
		{
			name: "explicit id after generated",
			lines: []string{
				`{"question":"A?","answer":"a"}`,
				`{"question":"B?","answer":"b"}`,
				`{"id":"q2","question":"C?","answer":"c"}`,
			},
			wantIDs: []string{"q1", "q3", "q2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a file mixing explicit and missing ids
			logger, logs := captureLogger()
			path := writeFile(t, "mixed.jsonl", strings.Join(tt.lines, "\n")+"\n")

			// When loading it
			ds, err := Load(path, logger)

			// Then every row survives with a distinct id
			require.NoError(t, err)
			ids := make([]string, 0, ds.Len())
			for _, q := range ds.Questions {
				ids = append(ids, q.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.NotContains(t, logs.String(), "skipping duplicate question id")
		})
	}
}

func TestLoad_RowWithoutReferenceIsSkipped(t *testing.T) {
	// Given a row with an empty answer next to a complete one
	logger, logs := captureLogger()
	path := writeFile(t, "noref.jsonl", `{"question":"Who wrote Truyện Kiều?","answer":""}
{"question":"Thủ đô của Việt Nam là gì?","answer":"Hà Nội"}
`)

	// When loading it
	ds, err := Load(path, logger)

	// Then only the judgeable row is kept
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "Hà Nội", ds.Questions[0].Reference)
	assert.Contains(t, logs.String(), "reference answer is required")
}

func TestParse_VersionIsContentHash(t *testing.T) {
	a, err := Parse("a", strings.NewReader(`{"question":"q","answer":"a"}`), FormatJSONL, nil)
	require.NoError(t, err)
	b, err := Parse("b", strings.NewReader(`{"question":"q","answer":"a"}`), FormatJSONL, nil)
	require.NoError(t, err)
	c, err := Parse("c", strings.NewReader(`{"question":"q","answer":"b"}`), FormatJSONL, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Version, b.Version)
	assert.NotEqual(t, a.Version, c.Version)
}

func TestDefault(t *testing.T) {
	ds, err := Default(nil)

	require.NoError(t, err)
	assert.Equal(t, DefaultName, ds.Name)
	assert.GreaterOrEqual(t, ds.Len(), 5)
	for _, q := range ds.Questions {
		assert.NoError(t, domain.ValidateQuestion(q))
		assert.NotEmpty(t, q.Context)
	}
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFor("x.YAML"))
	assert.Equal(t, FormatYAML, FormatFor("dir/x.yml"))
	assert.Equal(t, FormatJSONL, FormatFor("x.jsonl"))
	assert.Equal(t, FormatJSONL, FormatFor("x"))
}

func TestLimit(t *testing.T) {
	qs := []domain.Question{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}}

	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "zero means all", n: 0, want: 3},
		{name: "negative means all", n: -1, want: 3},
		{name: "smaller", n: 2, want: 2},
		{name: "equal", n: 3, want: 3},
		{name: "larger", n: 10, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Limit(qs, tt.n)
			require.Len(t, got, tt.want)
			for i := range got {
				assert.Equal(t, qs[i].ID, got[i].ID, "order is preserved")
			}
		})
	}
}
