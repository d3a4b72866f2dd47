package models

import "time"

// AnalysisResult is the stable analysis contract returned to callers.
// OriginalityScore is always 100 - SimilarityScore and ReadabilityScore is
// computed locally from the input text, never taken from the backend.
type AnalysisResult struct {
	SimilarityScore  float64       `json:"similarity_score"`
	OriginalityScore float64       `json:"originality_score"`
	AILikelihood     float64       `json:"ai_likelihood"`
	ReadabilityScore float64       `json:"readability_score"`
	ReadabilityLevel string        `json:"readability_level"`
	WordCount        int           `json:"word_count"`
	SentenceCount    int           `json:"sentence_count"`
	Quality          QualityScores `json:"quality"`
	Flags            []Flag        `json:"flags"`
	Summary          string        `json:"summary"`
	SchemaVersion    int           `json:"schema_version"` // backend revision the result was adapted from
}

// QualityScores is the writing-quality breakdown, each sub-score 0-100
type QualityScores struct {
	Clarity    float64 `json:"clarity"`
	Coherence  float64 `json:"coherence"`
	Vocabulary float64 `json:"vocabulary"`
	Grammar    float64 `json:"grammar"`
	Engagement float64 `json:"engagement"` // emotional resonance
}

// Flag marks an offending span of the input text
type Flag struct {
	Text       string        `json:"text"`
	Category   IssueCategory `json:"category"`
	Suggestion string        `json:"suggestion"`
	Severity   Severity      `json:"severity,omitempty"`
}

// RewriteResult is the stable rewrite contract returned to callers
type RewriteResult struct {
	RewrittenText   string   `json:"rewritten_text"`
	AIScoreBefore   float64  `json:"ai_score_before"`
	AIScoreAfter    float64  `json:"ai_score_after"`
	ComplexityScore float64  `json:"complexity_score"`
	Changes         []string `json:"changes"`
	Tone            string   `json:"tone"`
	Mode            Mode     `json:"mode"`
}

// AttemptRecord is one journaled backend attempt
type AttemptRecord struct {
	RequestID string    `json:"request_id"`
	Operation string    `json:"operation"`
	Attempt   int       `json:"attempt"`
	Kind      string    `json:"kind,omitempty"`
	DelayMS   int64     `json:"delay_ms"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
