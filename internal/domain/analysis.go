package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxEmbeddingTextLen caps the text fed to the embedding provider; upstream
// models truncate silently past this, so the cap is applied on our side.
const MaxEmbeddingTextLen = 2000

// AnalysisResult is the vision-analysis output for one input image.
// A zero value means "no analysis" and is a valid degraded state.
type AnalysisResult struct {
	description string
	mood        string
	lighting    string
	colors      []string
	tags        []string
}

// NewAnalysisResult creates an analysis result.
func NewAnalysisResult(description, mood, lighting string, colors, tags []string) AnalysisResult {
	return AnalysisResult{
		description: description, mood: mood, lighting: lighting,
		colors: colors, tags: tags,
	}
}

// Description returns the free-text scene description.
func (a *AnalysisResult) Description() string { return a.description }

// Mood returns the detected mood label.
func (a *AnalysisResult) Mood() string { return a.mood }

// Lighting returns the detected lighting label.
func (a *AnalysisResult) Lighting() string { return a.lighting }

// Colors returns the dominant color labels.
func (a *AnalysisResult) Colors() []string { return a.colors }

// Tags returns descriptive tags.
func (a *AnalysisResult) Tags() []string { return a.tags }

// Empty reports whether the analysis carries no usable description.
func (a *AnalysisResult) Empty() bool { return a.description == "" }

// EmbeddingText builds the length-capped text actually fed to the embedding
// client: description first, then structured fields as weak context.
func (a *AnalysisResult) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(a.description)
	if a.mood != "" {
		b.WriteString(" Mood: ")
		b.WriteString(a.mood)
		b.WriteString(".")
	}
	if a.lighting != "" {
		b.WriteString(" Lighting: ")
		b.WriteString(a.lighting)
		b.WriteString(".")
	}
	if len(a.tags) > 0 {
		b.WriteString(" Tags: ")
		b.WriteString(strings.Join(a.tags, ", "))
		b.WriteString(".")
	}
	return TruncateForEmbedding(b.String())
}

// TruncateForEmbedding caps arbitrary text at MaxEmbeddingTextLen bytes,
// cutting on a rune boundary so the result stays valid UTF-8.
func TruncateForEmbedding(text string) string {
	if len(text) <= MaxEmbeddingTextLen {
		return text
	}
	cut := MaxEmbeddingTextLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
