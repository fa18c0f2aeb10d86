// Package dataset loads the bilingual question sets evaluated by the harness.
//
// Two file formats are accepted. JSONL holds one object per line with
// "question" and "answer" keys and optional "id" and "context" keys. YAML
// holds the same rows under a top-level "questions" key. A dataset without a
// context for a row uses the reference answer as that row's context.
package dataset

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/hallucheck/internal/domain"
)

// DefaultName identifies the embedded dataset in logs and reports.
const DefaultName = "builtin:qa.jsonl"

//go:embed data/qa.jsonl
var builtin embed.FS

// Errors returned by Load.
var (
	ErrNotFound          = errors.New("dataset not found")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrEmpty             = errors.New("dataset contains no valid questions")
)

// Format is a dataset encoding.
type Format int

// Supported formats.
const (
	FormatJSONL Format = iota
	FormatYAML
)

// FormatFor picks a format from a file extension. Unknown extensions are
// treated as JSONL, the harness's native format.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

// Dataset is an immutable, versioned list of questions.
type Dataset struct {
	// Name is the source path or DefaultName.
	Name string
	// Version is a short content hash, stable for identical files.
	Version string
	// Questions are in file order.
	Questions []domain.Question
}

// Len returns the number of questions.
func (d Dataset) Len() int { return len(d.Questions) }

type row struct {
	ID       string  `json:"id" yaml:"id"`
	Question *string `json:"question" yaml:"question"`
	Answer   *string `json:"answer" yaml:"answer"`
	Context  string  `json:"context" yaml:"context"`
}

// Load reads the dataset at path. Malformed rows are logged and skipped.
func Load(path string, logger *slog.Logger) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Dataset{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return parseBytes(path, data, FormatFor(path), logger)
}

// Default returns the embedded bilingual dataset.
func Default(logger *slog.Logger) (Dataset, error) {
	data, err := builtin.ReadFile("data/qa.jsonl")
	if err != nil {
		return Dataset{}, fmt.Errorf("read embedded dataset: %w", err)
	}
	return parseBytes(DefaultName, data, FormatJSONL, logger)
}

// Parse decodes a dataset from r.
func Parse(name string, r io.Reader, format Format, logger *slog.Logger) (Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset %s: %w", name, err)
	}
	return parseBytes(name, data, format, logger)
}

func parseBytes(name string, data []byte, format Format, logger *slog.Logger) (Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("dataset", name)

	var (
		rows []numberedRow
		err  error
	)
	switch format {
	case FormatJSONL:
		rows, err = decodeJSONL(data, logger)
	case FormatYAML:
		rows, err = decodeYAML(data)
	default:
		return Dataset{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("parse dataset %s: %w", name, err)
	}

	questions := buildQuestions(rows, logger)
	if len(questions) == 0 {
		return Dataset{}, fmt.Errorf("%w: %s", ErrEmpty, name)
	}

	sum := sha256.Sum256(data)
	return Dataset{
		Name:      name,
		Version:   hex.EncodeToString(sum[:])[:12],
		Questions: questions,
	}, nil
}

type numberedRow struct {
	line int
	row  row
}

func decodeJSONL(data []byte, logger *slog.Logger) ([]numberedRow, error) {
	var rows []numberedRow

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var r row
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			logger.Warn("skipping malformed line", "line", line, "error", err)
			continue
		}
		rows = append(rows, numberedRow{line: line, row: r})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func decodeYAML(data []byte) ([]numberedRow, error) {
	var doc struct {
		Questions []row `yaml:"questions"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	rows := make([]numberedRow, len(doc.Questions))
	for i, r := range doc.Questions {
		rows[i] = numberedRow{line: i + 1, row: r}
	}
	return rows, nil
}

// buildQuestions validates rows, assigns missing ids and drops duplicates so
// each question is evaluated at most once.
func buildQuestions(rows []numberedRow, logger *slog.Logger) []domain.Question {
	questions := make([]domain.Question, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))

	// Generated ids must not take an id some later row asks for.
	explicit := make(map[string]struct{}, len(rows))
	for _, nr := range rows {
		if id := strings.TrimSpace(nr.row.ID); id != "" {
			explicit[id] = struct{}{}
		}
	}
	nextID := func() string {
		for n := len(questions) + 1; ; n++ {
			id := "q" + strconv.Itoa(n)
			_, taken := explicit[id]
			_, used := seen[id]
			if !taken && !used {
				return id
			}
		}
	}

	for _, nr := range rows {
		r := nr.row
		if r.Question == nil || r.Answer == nil {
			logger.Warn("skipping malformed line", "line", nr.line, "error", "missing question or answer")
			continue
		}

		q := domain.Question{
			ID:        strings.TrimSpace(r.ID),
			Text:      strings.TrimSpace(*r.Question),
			Context:   strings.TrimSpace(r.Context),
			Reference: strings.TrimSpace(*r.Answer),
		}
		if q.ID == "" {
			q.ID = nextID()
		}
		if q.Context == "" {
			q.Context = q.Reference
		}

		if err := domain.ValidateQuestion(q); err != nil {
			logger.Warn("skipping malformed line", "line", nr.line, "error", err)
			continue
		}
		if _, dup := seen[q.ID]; dup {
			logger.Warn("skipping duplicate question id", "line", nr.line, "id", q.ID)
			continue
		}
		seen[q.ID] = struct{}{}
		questions = append(questions, q)
	}
	return questions
}

// Limit returns the first min(n, len(qs)) questions in order. n <= 0 means
// no limit.
func Limit(qs []domain.Question, n int) []domain.Question {
	if n <= 0 || n >= len(qs) {
		return qs
	}
	return qs[:n]
}
