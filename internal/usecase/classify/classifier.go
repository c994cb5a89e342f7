// Package classify maps analysis tags and free text to a style category with a
// fixed, ordered keyword rule list.
package classify

import (
	"strings"

	"github.com/framelens/promptforge/internal/domain/category"
)

// rule is one (category, keyword-set) entry.
type rule struct {
	key      category.Key
	keywords []string
}

// rules is evaluated top to bottom: specific categories first, so the broad
// realism keyword set cannot shadow them. Reordering entries changes
// classification outcomes for ambiguous inputs; the order is deliberate.
var rules = []rule{
	{category.Anime, []string{
		"anime", "manga", "chibi", "cel shading", "cel-shaded", "ghibli", "waifu", "2d animation",
	}},
	{category.Cyberpunk, []string{
		"cyberpunk", "neon city", "dystopian", "blade runner", "synthwave", "hologram", "futuristic city",
	}},
	{category.Fantasy, []string{
		"fantasy", "dragon", "wizard", "medieval", "mythical", "elven", "sorcery", "enchanted",
	}},
	{category.Product, []string{
		"product", "packshot", "commercial", "advertisement", "perfume", "bottle", "studio product", "e-commerce",
	}},
	{category.Editorial, []string{
		"editorial", "fashion", "vogue", "runway", "high fashion", "magazine", "couture",
	}},
	{category.Minimalist, []string{
		"minimalist", "minimal", "clean lines", "negative space", "flat design", "geometric",
	}},
	{category.Cinematic, []string{
		"cinematic", "film still", "movie", "anamorphic", "film grain", "noir", "widescreen",
	}},
	{category.Realistic, []string{
		"realistic", "photorealistic", "photograph", "photo", "portrait", "natural light", "dslr", "candid",
	}},
}

// Classify resolves a category from analysis tags and free text. A rule matches
// when any keyword appears as an exact tag or as a substring of the lowercased
// tags+text haystack. The first matching rule wins; unclassifiable input falls
// back to the default category. Deterministic and side-effect-free.
func Classify(tags []string, freeText string) category.Key {
	exact := make(map[string]struct{}, len(tags))
	var hay strings.Builder
	for _, t := range tags {
		lower := strings.ToLower(strings.TrimSpace(t))
		exact[lower] = struct{}{}
		hay.WriteString(lower)
		hay.WriteString(" ")
	}
	hay.WriteString(strings.ToLower(freeText))
	haystack := hay.String()

	for _, r := range rules {
		for _, kw := range r.keywords {
			if _, ok := exact[kw]; ok {
				return r.key
			}
			if strings.Contains(haystack, kw) {
				return r.key
			}
		}
	}
	return category.Default
}

// Priority returns the evaluation order of category rules, for diagnostics.
func Priority() []category.Key {
	out := make([]category.Key, len(rules))
	for i, r := range rules {
		out[i] = r.key
	}
	return out
}
