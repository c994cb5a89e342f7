package domain

// ContentItem is a catalog entry: a reference image with its analysis-derived prompt,
// quality rating, curation flag, and embedding. Items are created on ingestion and
// mutated when analysis completes; the generation pipeline never deletes them.
type ContentItem struct {
	id           string
	mediaURL     string
	prompt       string
	qualityScore float64
	hasQuality   bool
	curated      bool
	public       bool
	category     string
	tags         []string
	embedding    []float32
}

// DefaultQualityScore stands in for an un-rated item so it is neither
// penalized nor favored beyond its similarity.
const DefaultQualityScore = 5.0

// NewContentItem creates a catalog item.
func NewContentItem(id, mediaURL string) ContentItem {
	return ContentItem{id: id, mediaURL: mediaURL}
}

// ReconstructItem rebuilds an item from storage fields.
func ReconstructItem(
	id, mediaURL, prompt string,
	qualityScore float64, hasQuality, curated, public bool,
	category string, tags []string, embedding []float32,
) ContentItem {
	return ContentItem{
		id: id, mediaURL: mediaURL, prompt: prompt,
		qualityScore: qualityScore, hasQuality: hasQuality,
		curated: curated, public: public,
		category: category, tags: tags, embedding: embedding,
	}
}

// ID returns the opaque item identifier.
func (i *ContentItem) ID() string { return i.id }

// MediaURL returns the underlying asset URL (identity key for dedup).
func (i *ContentItem) MediaURL() string { return i.mediaURL }

// Prompt returns the analysis-derived prompt text ("" until analyzed).
func (i *ContentItem) Prompt() string { return i.prompt }

// QualityScore returns the 0-10 rating, substituting the mid-value default when unset.
func (i *ContentItem) QualityScore() float64 {
	if !i.hasQuality {
		return DefaultQualityScore
	}
	return i.qualityScore
}

// HasQuality reports whether the item carries an explicit rating.
func (i *ContentItem) HasQuality() bool { return i.hasQuality }

// Curated reports whether the item is a manually-flagged high-quality reference.
func (i *ContentItem) Curated() bool { return i.curated }

// Public reports catalog visibility.
func (i *ContentItem) Public() bool { return i.public }

// Category returns the style category key assigned at analysis time ("" if none).
func (i *ContentItem) Category() string { return i.category }

// Tags returns descriptive tags from analysis.
func (i *ContentItem) Tags() []string { return i.tags }

// Embedding returns the item vector (nil until computed).
func (i *ContentItem) Embedding() []float32 { return i.embedding }

// SetPrompt records the analysis-derived prompt text.
func (i *ContentItem) SetPrompt(p string) { i.prompt = p }

// SetTags records analysis tags.
func (i *ContentItem) SetTags(tags []string) { i.tags = tags }

// SetCategory records the classified style category.
func (i *ContentItem) SetCategory(c string) { i.category = c }

// SetEmbedding records the computed vector.
func (i *ContentItem) SetEmbedding(v []float32) { i.embedding = v }
