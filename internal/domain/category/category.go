// Package category defines the closed set of style categories used to select
// prompt templates and curated example sets.
package category

import "fmt"

// Key is a style category identifier.
type Key string

// The closed category set. Exactly one effective category applies per request.
const (
	Anime      Key = "anime"
	Cyberpunk  Key = "cyberpunk"
	Fantasy    Key = "fantasy"
	Product    Key = "product"
	Editorial  Key = "editorial"
	Minimalist Key = "minimalist"
	Cinematic  Key = "cinematic"
	Realistic  Key = "realistic"
)

// Default is the fallback for well-formed but unclassifiable input.
const Default = Realistic

// All lists every valid key.
func All() []Key {
	return []Key{Anime, Cyberpunk, Fantasy, Product, Editorial, Minimalist, Cinematic, Realistic}
}

// Valid reports whether k is a member of the closed set.
func Valid(k Key) bool {
	switch k {
	case Anime, Cyberpunk, Fantasy, Product, Editorial, Minimalist, Cinematic, Realistic:
		return true
	}
	return false
}

// Parse validates a caller-supplied category string.
func Parse(s string) (Key, error) {
	k := Key(s)
	if !Valid(k) {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return k, nil
}

func (k Key) String() string { return string(k) }
