package models

import "strings"

// Mode is a named rewrite strategy
type Mode string

const (
	ModeNatural     Mode = "natural"
	ModeAcademic    Mode = "academic"
	ModeBalanced    Mode = "balanced"
	ModeStoryteller Mode = "storyteller"
	ModeAggressive  Mode = "aggressive"
)

// DefaultMode is used whenever a mode string is not recognised
const DefaultMode = ModeNatural

// Modes returns every supported mode in catalogue order
func Modes() []Mode {
	return []Mode{ModeNatural, ModeAcademic, ModeBalanced, ModeStoryteller, ModeAggressive}
}

// Valid reports whether m is one of the supported modes
func (m Mode) Valid() bool {
	switch m {
	case ModeNatural, ModeAcademic, ModeBalanced, ModeStoryteller, ModeAggressive:
		return true
	}
	return false
}

// ParseMode normalises s and falls back to DefaultMode for unknown values
func ParseMode(s string) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m.Valid() {
		return m
	}
	return DefaultMode
}

// IssueCategory classifies a flagged span
type IssueCategory string

const (
	CategoryAIPattern  IssueCategory = "ai_pattern"
	CategoryPlagiarism IssueCategory = "plagiarism"
	CategoryGrammar    IssueCategory = "grammar"
	CategoryClarity    IssueCategory = "clarity"
	CategoryStyle      IssueCategory = "style"
	CategoryRepetition IssueCategory = "repetition"
	CategoryTone       IssueCategory = "tone"
	CategoryOther      IssueCategory = "other"
)

// IssueCategories returns the closed category set
func IssueCategories() []IssueCategory {
	return []IssueCategory{
		CategoryAIPattern, CategoryPlagiarism, CategoryGrammar, CategoryClarity,
		CategoryStyle, CategoryRepetition, CategoryTone, CategoryOther,
	}
}

// categoryAliases maps tags older prompt revisions produced onto the current set
var categoryAliases = map[string]IssueCategory{
	"ai":          CategoryAIPattern,
	"ai_detected": CategoryAIPattern,
	"robotic":     CategoryAIPattern,
	"plagiarized": CategoryPlagiarism,
	"copied":      CategoryPlagiarism,
	"spelling":    CategoryGrammar,
	"readability": CategoryClarity,
	"wordiness":   CategoryStyle,
	"repetitive":  CategoryRepetition,
}

// ParseIssueCategory maps a backend tag onto the closed category set.
// Unknown tags become CategoryOther.
func ParseIssueCategory(s string) IssueCategory {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)

	switch c := IssueCategory(key); c {
	case CategoryAIPattern, CategoryPlagiarism, CategoryGrammar, CategoryClarity,
		CategoryStyle, CategoryRepetition, CategoryTone, CategoryOther:
		return c
	}
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryOther
}

// Severity is an optional flag severity
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity keeps an absent severity empty and maps unknown values to medium
func ParseSeverity(s string) Severity {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "":
		return ""
	case "low", "minor":
		return SeverityLow
	case "medium", "moderate":
		return SeverityMedium
	case "high", "critical", "major":
		return SeverityHigh
	}
	return SeverityMedium
}
