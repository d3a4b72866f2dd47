// Package prompt builds the system and user instructions sent to the language
// model for analysis and rewrite operations
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/models"
	"github.com/zombar/textengine/internal/schema"
)

// Operation names the kind of request a prompt is built for
type Operation string

const (
	OpAnalyze Operation = "analyze"
	OpRewrite Operation = "rewrite"
)

// Prompt is a ready-to-send instruction pair plus its sampling temperature
type Prompt struct {
	Operation   Operation
	Mode        models.Mode // empty for analysis
	System      string
	User        string
	Temperature float64
}

const analysisSystem = `You are a writing auditor. You assess text for originality, machine-generated patterns and writing quality.
You always answer with a single JSON object and nothing else: no Markdown, no code fences, no commentary.`

const analysisInstructions = `Analyze the text given in the "text" field below.

Return a JSON object with exactly these fields:
- schema_version: %d
- similarity_score: 0-100, how much of the text overlaps with commonly published sources
- ai_likelihood: 0-100, how likely the text was produced by a language model
- readability_score: 0-100 Flesch reading ease estimate
- quality: object with clarity, coherence, vocabulary, grammar and engagement, each 0-100
- flags: array of objects with
    text: the exact offending substring
    category: one of %s
    suggestion: a concrete replacement or fix
    severity: one of "low", "medium", "high"
- summary: two or three sentences describing the overall assessment

All scores must be numbers within 0-100.

%s`

const rewriteSystem = `You are an editor who rewrites text so it reads as naturally human-written while keeping its meaning.
You always answer with a single JSON object and nothing else: no Markdown, no code fences, no commentary.`

const rewriteInstructions = `Rewrite the text given in the "text" field below using the %q strategy:
%s

Return a JSON object with exactly these fields:
- rewritten_text: the full rewritten text
- ai_score_before: 0-100, how machine-written the original reads
- ai_score_after: 0-100, how machine-written the rewrite reads
- complexity_score: 0-100 lexical and syntactic complexity of the rewrite
- changes: array of short strings, each describing one change you made
- tone: one short phrase describing the resulting tone

%s`

// Analyze builds the analysis prompt for text
func Analyze(text string) (Prompt, error) {
	if err := requireText(text); err != nil {
		return Prompt{}, err
	}

	user := fmt.Sprintf(analysisInstructions,
		schema.CurrentAnalysisVersion,
		strings.Join(categoryList(), ", "),
		embed(text),
	)

	return Prompt{
		Operation:   OpAnalyze,
		System:      analysisSystem,
		User:        user,
		Temperature: AnalysisTemperature,
	}, nil
}

// Rewrite builds the rewrite prompt for text in mode m. Unknown modes use
// the default mode's template and temperature.
func Rewrite(text string, m models.Mode) (Prompt, error) {
	if err := requireText(text); err != nil {
		return Prompt{}, err
	}

	t := templateFor(m)
	user := fmt.Sprintf(rewriteInstructions, string(t.mode), t.strategy, embed(text))

	return Prompt{
		Operation:   OpRewrite,
		Mode:        t.mode,
		System:      rewriteSystem,
		User:        user,
		Temperature: t.temperature,
	}, nil
}

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &apperr.ValidationError{Field: "text", Message: "must not be empty"}
	}
	return nil
}

// embed frames the caller's text as a JSON document so quotes, newlines and
// control characters cannot escape the instruction boundary
func embed(text string) string {
	return fmt.Sprintf(`{"text": %s}`, Escape(text))
}

// Escape returns text as a quoted JSON string literal
func Escape(text string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding a string never fails
	_ = enc.Encode(text)
	return strings.TrimSuffix(buf.String(), "\n")
}

func categoryList() []string {
	cats := models.IssueCategories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = fmt.Sprintf("%q", string(c))
	}
	return out
}
