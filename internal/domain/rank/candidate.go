// Package rank holds the retrieval candidate model and the weighted
// relevance/quality scoring used to order them.
package rank

// Candidate is one vector-search hit, ephemeral per query.
type Candidate struct {
	itemID        string
	identityKey   string
	rawSimilarity float64
	qualityScore  float64
	curated       bool
	prompt        string
}

// NewCandidate creates a retrieval candidate. identityKey is the content-identity
// used for dedup (media URL when known, else the item id). rawSimilarity must be
// in [0,1]; qualityScore is the 0-10 rating with the un-rated default applied by
// the caller.
func NewCandidate(itemID, identityKey string, rawSimilarity, qualityScore float64, curated bool, prompt string) Candidate {
	if identityKey == "" {
		identityKey = itemID
	}
	return Candidate{
		itemID: itemID, identityKey: identityKey,
		rawSimilarity: rawSimilarity, qualityScore: qualityScore,
		curated: curated, prompt: prompt,
	}
}

// ItemID returns the catalog item identifier.
func (c *Candidate) ItemID() string { return c.itemID }

// IdentityKey returns the dedup key.
func (c *Candidate) IdentityKey() string { return c.identityKey }

// RawSimilarity returns the similarity score from vector search.
func (c *Candidate) RawSimilarity() float64 { return c.rawSimilarity }

// QualityScore returns the 0-10 quality rating.
func (c *Candidate) QualityScore() float64 { return c.qualityScore }

// Curated reports the manual high-quality flag.
func (c *Candidate) Curated() bool { return c.curated }

// Prompt returns the candidate's prompt text for in-context use.
func (c *Candidate) Prompt() string { return c.prompt }

// CuratedBoost is the multiplier applied to manually-flagged reference items.
const CuratedBoost = 1.5

// Weight computes the ranking weight:
//
//	rawSimilarity * (1 + qualityScore/10) * (curated ? 1.5 : 1.0)
func (c *Candidate) Weight() float64 {
	w := c.rawSimilarity * (1 + c.qualityScore/10)
	if c.curated {
		w *= CuratedBoost
	}
	return w
}

// Result is a candidate with its computed weight, in final rank order.
type Result struct {
	Candidate
	weight float64
}

// NewResult attaches a weight to a candidate.
func NewResult(c Candidate, weight float64) Result {
	return Result{Candidate: c, weight: weight}
}

// RankWeight returns the computed ordering weight.
func (r *Result) RankWeight() float64 { return r.weight }
