// Package adapter projects validated backend results onto the stable result
// types callers consume. Every revision goes through the same field table.
package adapter

import (
	"github.com/zombar/textengine/internal/models"
	"github.com/zombar/textengine/internal/readability"
	"github.com/zombar/textengine/internal/schema"
)

const (
	// PlagiarismFoundSimilarity is the similarity reported for a v1 payload
	// that only says plagiarism was found
	PlagiarismFoundSimilarity = 85.0
	// PlagiarismClearSimilarity is reported when v1 says none was found
	PlagiarismClearSimilarity = 0.0
	// DefaultSummary fills an empty backend summary
	DefaultSummary = "No summary provided."
)

// field projects one stable field out of a validated analysis
type field struct {
	name    string
	project func(a schema.Analysis, out *models.AnalysisResult)
}

// analysisFields is the explicit field-by-field projection
var analysisFields = []field{
	{"similarity_score", func(a schema.Analysis, out *models.AnalysisResult) {
		switch {
		case a.Similarity != nil:
			out.SimilarityScore = *a.Similarity
		case a.PlagiarismFound != nil && *a.PlagiarismFound:
			out.SimilarityScore = PlagiarismFoundSimilarity
		default:
			out.SimilarityScore = PlagiarismClearSimilarity
		}
	}},
	{"ai_likelihood", func(a schema.Analysis, out *models.AnalysisResult) {
		out.AILikelihood = a.AILikelihood
	}},
	{"readability_score", func(a schema.Analysis, out *models.AnalysisResult) {
		if a.Readability != nil {
			out.ReadabilityScore = *a.Readability
		}
	}},
	{"quality", func(a schema.Analysis, out *models.AnalysisResult) {
		q := schema.Quality{
			Clarity:    schema.DefaultSubScore,
			Coherence:  schema.DefaultSubScore,
			Vocabulary: schema.DefaultSubScore,
			Grammar:    schema.DefaultSubScore,
			Engagement: schema.DefaultSubScore,
		}
		if a.Quality != nil {
			q = *a.Quality
		}
		out.Quality = models.QualityScores{
			Clarity:    q.Clarity,
			Coherence:  q.Coherence,
			Vocabulary: q.Vocabulary,
			Grammar:    q.Grammar,
			Engagement: q.Engagement,
		}
	}},
	{"flags", func(a schema.Analysis, out *models.AnalysisResult) {
		out.Flags = make([]models.Flag, len(a.Flags))
		copy(out.Flags, a.Flags)
	}},
	{"summary", func(a schema.Analysis, out *models.AnalysisResult) {
		out.Summary = a.Summary
		if out.Summary == "" {
			out.Summary = DefaultSummary
		}
	}},
	{"schema_version", func(a schema.Analysis, out *models.AnalysisResult) {
		out.SchemaVersion = a.Version
	}},
}

// Analysis maps a validated analysis of any revision onto the stable result.
// Scores are clamped and originality is derived from similarity.
func Analysis(a schema.Analysis) models.AnalysisResult {
	var out models.AnalysisResult
	for _, f := range analysisFields {
		f.project(a, &out)
	}
	Normalize(&out)
	return out
}

// Normalize clamps every score to [0, 100] and recomputes originality
func Normalize(r *models.AnalysisResult) {
	r.SimilarityScore = readability.Clamp(r.SimilarityScore)
	r.AILikelihood = readability.Clamp(r.AILikelihood)
	r.ReadabilityScore = readability.Clamp(r.ReadabilityScore)
	r.Quality.Clarity = readability.Clamp(r.Quality.Clarity)
	r.Quality.Coherence = readability.Clamp(r.Quality.Coherence)
	r.Quality.Vocabulary = readability.Clamp(r.Quality.Vocabulary)
	r.Quality.Grammar = readability.Clamp(r.Quality.Grammar)
	r.Quality.Engagement = readability.Clamp(r.Quality.Engagement)
	r.OriginalityScore = 100 - r.SimilarityScore
	if r.Flags == nil {
		r.Flags = []models.Flag{}
	}
}

// Rewrite maps a validated rewrite onto the stable result
func Rewrite(rw schema.Rewrite, mode models.Mode) models.RewriteResult {
	changes := make([]string, len(rw.Changes))
	copy(changes, rw.Changes)

	tone := rw.Tone
	if tone == "" {
		tone = string(mode)
	}

	return models.RewriteResult{
		RewrittenText:   rw.Text,
		AIScoreBefore:   readability.Clamp(rw.AIScoreBefore),
		AIScoreAfter:    readability.Clamp(rw.AIScoreAfter),
		ComplexityScore: readability.Clamp(rw.Complexity),
		Changes:         changes,
		Tone:            tone,
		Mode:            mode,
	}
}
