package schema

import (
	"strings"

	"github.com/zombar/textengine/internal/apperr"
)

// Rewrite is the validated internal shape of a rewrite payload
type Rewrite struct {
	Text          string
	AIScoreBefore float64
	AIScoreAfter  float64
	Complexity    float64
	Changes       []string
	Tone          string
}

// rewriteWire accepts the current field names and the legacy aliases
// humanized_text, changes_made and readability
type rewriteWire struct {
	RewrittenText   *string  `json:"rewritten_text"`
	HumanizedText   *string  `json:"humanized_text"`
	AIScoreBefore   *float64 `json:"ai_score_before" validate:"required,gte=0,lte=100"`
	AIScoreAfter    *float64 `json:"ai_score_after" validate:"required,gte=0,lte=100"`
	ComplexityScore *float64 `json:"complexity_score" validate:"omitempty,gte=0,lte=100"`
	Readability     *float64 `json:"readability" validate:"omitempty,gte=0,lte=100"`
	Changes         []string `json:"changes"`
	ChangesMade     []string `json:"changes_made"`
	Tone            string   `json:"tone"`
}

// RewriteDecoder decodes rewrite payloads
type RewriteDecoder struct{}

func (RewriteDecoder) Name() string { return "rewrite" }

func (d RewriteDecoder) Decode(payload []byte) (Rewrite, error) {
	var w rewriteWire
	if err := decodeJSON(d.Name(), payload, &w); err != nil {
		return Rewrite{}, err
	}
	if err := check(d.Name(), w); err != nil {
		return Rewrite{}, err
	}

	text := firstNonBlank(w.RewrittenText, w.HumanizedText)
	if text == "" {
		return Rewrite{}, &apperr.SchemaViolation{
			Schema: d.Name(),
			Field:  "rewritten_text",
			Reason: "rewritten_text is a required field",
		}
	}

	var complexity float64
	switch {
	case w.ComplexityScore != nil:
		complexity = *w.ComplexityScore
	case w.Readability != nil:
		complexity = *w.Readability
	default:
		return Rewrite{}, &apperr.SchemaViolation{
			Schema: d.Name(),
			Field:  "complexity_score",
			Reason: "complexity_score is a required field",
		}
	}

	changes := w.Changes
	if changes == nil {
		changes = w.ChangesMade
	}
	if changes == nil {
		changes = []string{}
	}

	return Rewrite{
		Text:          text,
		AIScoreBefore: *w.AIScoreBefore,
		AIScoreAfter:  *w.AIScoreAfter,
		Complexity:    complexity,
		Changes:       changes,
		Tone:          strings.TrimSpace(w.Tone),
	}, nil
}

func firstNonBlank(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}
