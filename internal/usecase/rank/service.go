// Package rank re-scores retrieval candidates with the weighted
// relevance/quality formula and produces a deduplicated total order.
package rank

import (
	"sort"

	domrank "github.com/framelens/promptforge/internal/domain/rank"
)

// DefaultRecommendations is the number of ranked items surfaced after the top match.
const DefaultRecommendations = 3

// Ranked is the ordered result of one ranking call.
type Ranked struct {
	results []domrank.Result
}

// Rank deduplicates candidates by identity key (first occurrence wins), computes
// each weight, and sorts descending. Ties keep the original retrieval order.
// An empty candidate list yields an empty ranking, not an error.
func Rank(candidates []domrank.Candidate) Ranked {
	seen := make(map[string]struct{}, len(candidates))
	results := make([]domrank.Result, 0, len(candidates))

	for _, c := range candidates {
		if _, dup := seen[c.IdentityKey()]; dup {
			continue
		}
		seen[c.IdentityKey()] = struct{}{}
		results = append(results, domrank.NewResult(c, c.Weight()))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RankWeight() > results[j].RankWeight()
	})

	return Ranked{results: results}
}

// Results returns the full ranked list.
func (r *Ranked) Results() []domrank.Result { return r.results }

// Len returns the ranked item count.
func (r *Ranked) Len() int { return len(r.results) }

// TopMatch returns the highest-weighted result, or nil when the ranking is empty.
func (r *Ranked) TopMatch() *domrank.Result {
	if len(r.results) == 0 {
		return nil
	}
	return &r.results[0]
}

// Recommendations returns up to n results after the top match.
func (r *Ranked) Recommendations(n int) []domrank.Result {
	if n <= 0 {
		n = DefaultRecommendations
	}
	if len(r.results) <= 1 {
		return nil
	}
	rest := r.results[1:]
	if len(rest) > n {
		rest = rest[:n]
	}
	return rest
}
