package prompt

import "github.com/zombar/textengine/internal/models"

// AnalysisTemperature keeps analysis output low-variance and reproducible
const AnalysisTemperature = 0.2

// template is the fixed instruction variant for one rewrite mode
type template struct {
	mode        models.Mode
	summary     string
	strategy    string
	temperature float64
}

// templateFor returns the template for m. Unknown modes get the default
// mode's template; this never panics.
func templateFor(m models.Mode) template {
	switch m {
	case models.ModeNatural:
		return template{
			mode:    models.ModeNatural,
			summary: "Conservative rewrite that keeps meaning and structure",
			strategy: `Keep the original meaning, order of ideas and paragraph structure.
Replace stock phrases and filler transitions with plain wording.
Vary sentence length a little so the rhythm is less uniform.
Do not add new facts, opinions or examples.`,
			temperature: 0.7,
		}
	case models.ModeAcademic:
		return template{
			mode:    models.ModeAcademic,
			summary: "Formal register suitable for papers and reports",
			strategy: `Write in a precise, formal academic register.
Prefer discipline-appropriate vocabulary over generic intensifiers.
Keep hedging measured and specific rather than formulaic.
Preserve every claim and citation exactly as given.`,
			temperature: 0.6,
		}
	case models.ModeBalanced:
		return template{
			mode:    models.ModeBalanced,
			summary: "Moderate restructuring with a neutral tone",
			strategy: `Restructure sentences freely while keeping paragraph boundaries.
Mix short and long sentences and avoid repeated openings.
Remove predictable transitions such as "Furthermore" and "In conclusion".
Keep a neutral, conversational but competent tone.`,
			temperature: 0.8,
		}
	case models.ModeStoryteller:
		return template{
			mode:    models.ModeStoryteller,
			summary: "Narrative voice with concrete detail",
			strategy: `Retell the content with a narrative voice and a clear point of view.
Use concrete, sensory details and occasional rhetorical questions.
Let sentence rhythm follow the story, including fragments where natural.
Keep the underlying facts unchanged.`,
			temperature: 0.9,
		}
	case models.ModeAggressive:
		return template{
			mode:    models.ModeAggressive,
			summary: "Heavy rewrite for text that reads strongly machine-written",
			strategy: `Rewrite from scratch in your own words, keeping only the meaning.
Break uniform structure: reorder points, merge or split paragraphs.
Maximise burstiness and lower perplexity patterns typical of generated text.
Use idioms, contractions and an informal human voice.`,
			temperature: 1.0,
		}
	default:
		return templateFor(models.DefaultMode)
	}
}

// Temperature returns the sampling temperature for a rewrite in mode m
func Temperature(m models.Mode) float64 {
	return templateFor(m).temperature
}

// ModeInfo describes one rewrite mode for catalogue listings
type ModeInfo struct {
	Mode        models.Mode `json:"mode"`
	Description string      `json:"description"`
	Temperature float64     `json:"temperature"`
}

// Catalogue lists every mode with its description and temperature
func Catalogue() []ModeInfo {
	modes := models.Modes()
	out := make([]ModeInfo, 0, len(modes))
	for _, m := range modes {
		t := templateFor(m)
		out = append(out, ModeInfo{Mode: t.mode, Description: t.summary, Temperature: t.temperature})
	}
	return out
}
