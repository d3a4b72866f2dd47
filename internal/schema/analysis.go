package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/models"
)

// CurrentAnalysisVersion is the revision the analysis prompt asks for
const CurrentAnalysisVersion = 3

// DefaultSubScore fills optional quality sub-scores the backend left out
const DefaultSubScore = 50.0

// Analysis is the validated internal shape every analysis revision decodes into.
// Pointer fields are absent in some revisions; the adapter fills them in.
type Analysis struct {
	Version         int
	Similarity      *float64
	PlagiarismFound *bool
	AILikelihood    float64
	Readability     *float64 // backend estimate, replaced by the local score
	Quality         *Quality
	Flags           []models.Flag
	Summary         string
}

// Quality is the writing-quality breakdown as reported by v3 payloads
type Quality struct {
	Clarity    float64
	Coherence  float64
	Vocabulary float64
	Grammar    float64
	Engagement float64
}

type analysisV3 struct {
	SchemaVersion    int        `json:"schema_version"`
	SimilarityScore  *float64   `json:"similarity_score" validate:"required,gte=0,lte=100"`
	AILikelihood     *float64   `json:"ai_likelihood" validate:"required,gte=0,lte=100"`
	ReadabilityScore *float64   `json:"readability_score"`
	Quality          *qualityV3 `json:"quality" validate:"required"`
	Flags            []flagV3   `json:"flags" validate:"dive"`
	Summary          string     `json:"summary"`
}

type qualityV3 struct {
	Clarity    *float64 `json:"clarity" validate:"required,gte=0,lte=100"`
	Coherence  *float64 `json:"coherence" validate:"required,gte=0,lte=100"`
	Vocabulary *float64 `json:"vocabulary" validate:"required,gte=0,lte=100"`
	Grammar    *float64 `json:"grammar" validate:"required,gte=0,lte=100"`
	Engagement *float64 `json:"engagement" validate:"omitempty,gte=0,lte=100"`
}

type flagV3 struct {
	Text       string `json:"text" validate:"required"`
	Category   string `json:"category"`
	Suggestion string `json:"suggestion"`
	Severity   string `json:"severity"`
}

type analysisV2 struct {
	Similarity    *float64      `json:"similarity" validate:"required,gte=0,lte=100"`
	AIProbability *float64      `json:"ai_probability" validate:"required,gte=0,lte=100"`
	Readability   *float64      `json:"readability"`
	Issues        []legacyIssue `json:"issues" validate:"dive"`
	Summary       string        `json:"summary"`
}

type analysisV1 struct {
	PlagiarismFound *bool         `json:"plagiarism_found" validate:"required"`
	AIScore         *float64      `json:"ai_score" validate:"required,gte=0,lte=100"`
	Issues          []legacyIssue `json:"issues" validate:"dive"`
	Summary         string        `json:"summary"`
}

type legacyIssue struct {
	Phrase   string `json:"phrase" validate:"required"`
	Type     string `json:"type"`
	Fix      string `json:"fix"`
	Severity string `json:"severity"`
}

// analysisRevision recognises one payload revision by its marker keys
type analysisRevision struct {
	version int
	markers []string
	decode  func(payload []byte) (Analysis, error)
}

// revisions are probed newest first
var analysisRevisions = []analysisRevision{
	{version: 3, markers: []string{"similarity_score", "ai_likelihood", "quality", "flags"}, decode: decodeV3},
	{version: 2, markers: []string{"similarity", "ai_probability"}, decode: decodeV2},
	{version: 1, markers: []string{"plagiarism_found", "ai_score"}, decode: decodeV1},
}

// AnalysisDecoder decodes any known analysis revision
type AnalysisDecoder struct{}

func (AnalysisDecoder) Name() string { return "analysis" }

// Decode detects the payload revision, from an explicit schema_version or
// from its marker fields, and validates it against that revision
func (d AnalysisDecoder) Decode(payload []byte) (Analysis, error) {
	var fields map[string]json.RawMessage
	if err := decodeJSON(d.Name(), payload, &fields); err != nil {
		return Analysis{}, err
	}

	rev, err := d.revision(fields)
	if err != nil {
		return Analysis{}, err
	}
	return rev.decode(payload)
}

func (d AnalysisDecoder) revision(fields map[string]json.RawMessage) (analysisRevision, error) {
	if raw, ok := fields["schema_version"]; ok {
		var version int
		if err := json.Unmarshal(raw, &version); err != nil {
			return analysisRevision{}, &apperr.SchemaViolation{
				Schema: d.Name(),
				Field:  "schema_version",
				Reason: "schema_version must be an integer",
			}
		}
		for _, rev := range analysisRevisions {
			if rev.version == version {
				return rev, nil
			}
		}
		return analysisRevision{}, &apperr.SchemaViolation{
			Schema: d.Name(),
			Field:  "schema_version",
			Reason: fmt.Sprintf("schema_version %d is not supported", version),
		}
	}

	for _, rev := range analysisRevisions {
		if hasAny(fields, rev.markers...) {
			return rev, nil
		}
	}
	return analysisRevision{}, &apperr.SchemaViolation{
		Schema: d.Name(),
		Reason: "payload matches no known analysis revision",
	}
}

func decodeV3(payload []byte) (Analysis, error) {
	var w analysisV3
	if err := decodeJSON("analysis", payload, &w); err != nil {
		return Analysis{}, err
	}
	if err := check("analysis", w); err != nil {
		return Analysis{}, err
	}

	engagement := DefaultSubScore
	if w.Quality.Engagement != nil {
		engagement = *w.Quality.Engagement
	}

	flags := make([]models.Flag, 0, len(w.Flags))
	for _, f := range w.Flags {
		flags = append(flags, newFlag(f.Text, f.Category, f.Suggestion, f.Severity))
	}

	return Analysis{
		Version:      3,
		Similarity:   w.SimilarityScore,
		AILikelihood: *w.AILikelihood,
		Readability:  w.ReadabilityScore,
		Quality: &Quality{
			Clarity:    *w.Quality.Clarity,
			Coherence:  *w.Quality.Coherence,
			Vocabulary: *w.Quality.Vocabulary,
			Grammar:    *w.Quality.Grammar,
			Engagement: engagement,
		},
		Flags:   flags,
		Summary: strings.TrimSpace(w.Summary),
	}, nil
}

func decodeV2(payload []byte) (Analysis, error) {
	var w analysisV2
	if err := decodeJSON("analysis", payload, &w); err != nil {
		return Analysis{}, err
	}
	if err := check("analysis", w); err != nil {
		return Analysis{}, err
	}

	return Analysis{
		Version:      2,
		Similarity:   w.Similarity,
		AILikelihood: *w.AIProbability,
		Readability:  w.Readability,
		Flags:        legacyFlags(w.Issues),
		Summary:      strings.TrimSpace(w.Summary),
	}, nil
}

func decodeV1(payload []byte) (Analysis, error) {
	var w analysisV1
	if err := decodeJSON("analysis", payload, &w); err != nil {
		return Analysis{}, err
	}
	if err := check("analysis", w); err != nil {
		return Analysis{}, err
	}

	return Analysis{
		Version:         1,
		PlagiarismFound: w.PlagiarismFound,
		AILikelihood:    *w.AIScore,
		Flags:           legacyFlags(w.Issues),
		Summary:         strings.TrimSpace(w.Summary),
	}, nil
}

func legacyFlags(issues []legacyIssue) []models.Flag {
	flags := make([]models.Flag, 0, len(issues))
	for _, is := range issues {
		flags = append(flags, newFlag(is.Phrase, is.Type, is.Fix, is.Severity))
	}
	return flags
}

func newFlag(text, category, suggestion, severity string) models.Flag {
	return models.Flag{
		Text:       text,
		Category:   models.ParseIssueCategory(category),
		Suggestion: suggestion,
		Severity:   models.ParseSeverity(severity),
	}
}
