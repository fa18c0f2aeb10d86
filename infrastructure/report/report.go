// Package report renders run results for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ahrav/hallucheck/internal/domain"
)

// quickResultWidth is how many runes of a question the quick results list
// shows.
const quickResultWidth = 80

// Palette.
var (
	colorPass   = lipgloss.Color("#2CD7C7")
	colorFail   = lipgloss.Color("#E74C3C")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorMuted  = lipgloss.Color("242")
	colorHeader = lipgloss.Color("33")
)

// Options controls rendering.
type Options struct {
	// Verbose renders the full per-question table instead of quick results.
	Verbose bool
	// NoColor disables all styling.
	NoColor bool
	// Width bounds the verbose table; zero leaves it unbounded.
	Width int
}

// Render writes r to w. It is a pure function of its inputs.
func Render(w io.Writer, r domain.Report, opts Options) error {
	var b strings.Builder

	b.WriteString(renderHeader(r, opts))
	b.WriteString("\n\n")

	if opts.Verbose {
		b.WriteString(renderVerbose(r, opts))
	} else {
		b.WriteString(renderQuick(r, opts))
	}
	b.WriteString("\n")
	b.WriteString(renderSummary(r, opts))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func renderHeader(r domain.Report, opts Options) string {
	line := "Mode: " + r.Mode.String()
	if r.Dataset != "" {
		line += " | Dataset: " + r.Dataset
		if r.DatasetVersion != "" {
			line += "@" + r.DatasetVersion
		}
	}
	if r.AnswerModel != "" || r.JudgeModel != "" {
		line += " | Models: " + r.AnswerModel + " / " + r.JudgeModel
	}
	if r.RunID != "" {
		line += " | Run " + r.RunID
	}
	return stylize(line, opts.NoColor, lipgloss.NewStyle().Foreground(colorHeader))
}

// renderQuick lists one status line per question.
func renderQuick(r domain.Report, opts Options) string {
	var b strings.Builder
	b.WriteString(stylize("Quick Results:", opts.NoColor, lipgloss.NewStyle().Bold(true)))
	b.WriteString("\n")
	for i, res := range r.Results {
		fmt.Fprintf(&b, "%s - Q%d: %s\n", statusLabel(res.Judgment.Outcome, opts.NoColor), i+1, truncate(res.Question.Text, quickResultWidth))
	}
	return b.String()
}

// renderVerbose builds the full per-question table.
func renderVerbose(r domain.Report, opts Options) string {
	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		answer := "-"
		if res.Answer != nil {
			answer = res.Answer.Text
		}
		similarity := "-"
		if res.Answer != nil {
			similarity = strconv.FormatFloat(res.Judgment.Similarity, 'f', 2, 64)
		}
		rows = append(rows, []string{
			res.Question.Text,
			res.Question.Reference,
			answer,
			string(res.Judgment.Outcome),
			similarity,
			res.Judgment.Rationale,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(true).
		Headers("Question", "Ground Truth", "Model Answer", "Outcome", "Similarity", "Rationale").
		Rows(rows...)
	if opts.Width > 0 {
		t = t.Width(opts.Width)
	}
	if !opts.NoColor {
		t = t.
			BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Bold(true).Padding(0, 1)
				}
				style := lipgloss.NewStyle().Padding(0, 1)
				if col == 3 && row >= 0 && row < len(r.Results) {
					style = style.Foreground(outcomeColor(r.Results[row].Judgment.Outcome)).Bold(true)
				}
				return style
			})
	}

	return "Verbose Evaluation Results\n" + t.String() + "\n"
}

// renderSummary prints the final counts and rate.
func renderSummary(r domain.Report, opts Options) string {
	s := r.Summary
	rate := "N/A"
	if v, ok := s.Rate(); ok {
		rate = fmt.Sprintf("%.2f (%.2f%%)", v, v*100)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Rows(
			[]string{"Total Questions Evaluated", strconv.Itoa(s.Total)},
			[]string{"Judged", strconv.Itoa(s.Judged)},
			[]string{"Total Hallucinations Detected", strconv.Itoa(s.Hallucinated)},
			[]string{"Faithful", strconv.Itoa(s.Faithful)},
			[]string{"Errors", strconv.Itoa(s.Errors)},
			[]string{"Unjudged", strconv.Itoa(s.Unjudged)},
			[]string{"Hallucination Rate", rate},
		)
	if !opts.NoColor {
		t = t.
			BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
			StyleFunc(func(row, _ int) lipgloss.Style {
				style := lipgloss.NewStyle().Padding(0, 1)
				if row == 6 {
					style = style.Foreground(colorWarn).Bold(true)
				}
				return style
			})
	}

	title := stylize(fmt.Sprintf("Final Report (%s)", r.Mode), opts.NoColor, lipgloss.NewStyle().Bold(true))
	return title + "\n" + t.String() + "\n"
}

func statusLabel(o domain.Outcome, noColor bool) string {
	var label string
	switch o {
	case domain.OutcomeFaithful:
		label = "✔ PASS"
	case domain.OutcomeHallucinated:
		label = "✖ FAIL"
	case domain.OutcomeUnjudged:
		label = "? UNJUDGED"
	default:
		label = "! ERROR"
	}
	return stylize(label, noColor, lipgloss.NewStyle().Bold(true).Foreground(outcomeColor(o)))
}

func outcomeColor(o domain.Outcome) lipgloss.Color {
	switch o {
	case domain.OutcomeFaithful:
		return colorPass
	case domain.OutcomeHallucinated:
		return colorFail
	default:
		return colorWarn
	}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func stylize(text string, noColor bool, style lipgloss.Style) string {
	if noColor {
		return text
	}
	return style.Render(text)
}
