package units

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PromptFuncMap returns the functions available to prompt templates.
//
// Every function is pure and safe for concurrent template execution. Inputs
// are user data (questions, references, model answers) in Vietnamese or
// English, so all length handling counts runes, not bytes.
//
//	{{trim .Answer}}
//	{{truncate .Context 2000}}
func PromptFuncMap() template.FuncMap {
	return template.FuncMap{
		// trim removes leading and trailing whitespace.
		"trim": strings.TrimSpace,

		// nfc composes combining marks so "Pháp" renders as "Pháp".
		"nfc": norm.NFC.String,

		// oneLine collapses all whitespace runs, including newlines, to a
		// single space.
		"oneLine": func(s string) string {
			return strings.Join(strings.Fields(s), " ")
		},

		// truncate keeps at most n runes, marking a cut with "...".
		// Returns "" when n <= 0.
		"truncate": truncateRunes,

		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n > 3 {
		return string(runes[:n-3]) + "..."
	}
	return string(runes[:n])
}

// parsePrompt compiles a prompt template with PromptFuncMap. Missing fields
// are errors rather than "<no value>".
func parsePrompt(name, src string) (*template.Template, error) {
	return template.New(name).Funcs(PromptFuncMap()).Option("missingkey=error").Parse(src)
}
