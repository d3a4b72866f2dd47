// Package readability computes the Flesch reading-ease score locally so the
// value reported to callers never depends on the language model
package readability

import (
	"math"
	"regexp"
	"strings"
)

var (
	nonWord       = regexp.MustCompile(`[^\w\s]`)
	sentenceEnder = regexp.MustCompile(`[.!?]+`)
	trailingEnder = regexp.MustCompile(`[.!?]+\s*$`)
	vowels        = "aeiouy"
)

// Result holds the score together with the counts it was derived from
type Result struct {
	Score     float64 `json:"score"`
	Level     string  `json:"level"`
	Words     int     `json:"words"`
	Sentences int     `json:"sentences"`
	Syllables int     `json:"syllables"`
}

// Analyze computes the clamped Flesch reading-ease score for text
func Analyze(text string) Result {
	words := ExtractWords(text)
	sentences := CountSentences(text)

	syllables := 0
	for _, w := range words {
		syllables += CountSyllables(w)
	}

	score := Clamp(FleschReadingEase(len(words), sentences, syllables))
	score = math.Round(score*100) / 100

	return Result{
		Score:     score,
		Level:     Level(score),
		Words:     len(words),
		Sentences: sentences,
		Syllables: syllables,
	}
}

// Score is a shorthand for Analyze(text).Score
func Score(text string) float64 {
	return Analyze(text).Score
}

// FleschReadingEase applies 206.835 - 1.015*(words/sentences) - 84.6*(syllables/words).
// Zero sentences count as one; zero words score 0.
func FleschReadingEase(words, sentences, syllables int) float64 {
	if words == 0 {
		return 0
	}
	if sentences <= 0 {
		sentences = 1
	}
	wordsPerSentence := float64(words) / float64(sentences)
	syllablesPerWord := float64(syllables) / float64(words)
	return 206.835 - 1.015*wordsPerSentence - 84.6*syllablesPerWord
}

// Clamp bounds a score to [0, 100]
func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}

// ExtractWords lowercases text and splits it on anything that is not a word character
func ExtractWords(text string) []string {
	text = strings.ToLower(text)
	text = nonWord.ReplaceAllString(text, " ")
	return strings.Fields(text)
}

// CountSentences counts runs of terminal punctuation. A final sentence without
// terminal punctuation still counts, and text with none counts as one sentence.
func CountSentences(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 1
	}
	count := len(sentenceEnder.FindAllString(text, -1))
	if !trailingEnder.MatchString(text) {
		count++
	}
	return count
}

// CountSyllables approximates syllables by counting vowel clusters, with a
// silent trailing "e" adjustment. Every word has at least one syllable.
func CountSyllables(word string) int {
	word = strings.ToLower(word)
	if word == "" {
		return 0
	}

	count := 0
	prevWasVowel := false
	for _, char := range word {
		isVowel := strings.ContainsRune(vowels, char)
		if isVowel && !prevWasVowel {
			count++
		}
		prevWasVowel = isVowel
	}

	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

// Level turns a score into a reading level label
func Level(score float64) string {
	switch {
	case score >= 90:
		return "very_easy"
	case score >= 80:
		return "easy"
	case score >= 70:
		return "fairly_easy"
	case score >= 60:
		return "standard"
	case score >= 50:
		return "fairly_difficult"
	case score >= 30:
		return "difficult"
	default:
		return "very_difficult"
	}
}
