// Package catalog persists content items as hashes and serves vector retrieval
// over them via the FT index.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/framelens/promptforge/internal/db"
	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/domain/rank"
)

const (
	keyPrefix = "item:"
	indexName = "idx:items"
)

// store is the consumer interface for catalog operations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements the catalog against hash keys item:{id}.
type Repo struct {
	store     store
	vectorDim int
}

// New creates a catalog repository. vectorDim must match the embedding model.
func New(s store, vectorDim int) *Repo {
	return &Repo{store: s, vectorDim: vectorDim}
}

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("probe index %s: %w", indexName, err)
	}
	if exists {
		return nil
	}
	def := &db.IndexDefinition{
		Name:       indexName,
		Prefix:     keyPrefix,
		VectorDim:  r.vectorDim,
		TagFields:  []string{"category", "public", "curated"},
		TextFields: []string{"prompt"},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", indexName, err)
	}
	return nil
}

// GetItem returns an item by id.
func (r *Repo) GetItem(ctx context.Context, id string) (domain.ContentItem, error) {
	fields, err := r.store.HGetAll(ctx, itemKey(id))
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("hgetall %s: %w", itemKey(id), err)
	}
	if len(fields) == 0 {
		return domain.ContentItem{}, domain.ErrItemNotFound
	}
	return itemFromFields(id, fields), nil
}

// UpsertItem writes the full item hash, vector included when present.
func (r *Repo) UpsertItem(ctx context.Context, item *domain.ContentItem) error {
	fields := itemToFields(item)
	if err := r.store.HSet(ctx, itemKey(item.ID()), fields); err != nil {
		return fmt.Errorf("hset %s: %w", itemKey(item.ID()), err)
	}
	return nil
}

// UpdateAnalysis persists analysis-derived fields (prompt, tags, category,
// embedding) without touching ingestion fields.
func (r *Repo) UpdateAnalysis(ctx context.Context, item *domain.ContentItem) error {
	fields := map[string]string{
		"prompt":   item.Prompt(),
		"tags":     strings.Join(item.Tags(), ","),
		"category": item.Category(),
	}
	if v := item.Embedding(); len(v) > 0 {
		fields["vector"] = vectorToBytes(v)
	}
	if err := r.store.HSet(ctx, itemKey(item.ID()), fields); err != nil {
		return fmt.Errorf("hset %s: %w", itemKey(item.ID()), err)
	}
	return nil
}

// VectorSearch returns ranked retrieval candidates for the query vector.
// Only public items are searched; category narrows the pre-filter when set.
func (r *Repo) VectorSearch(ctx context.Context, vector []float32, k int, category string) ([]rank.Candidate, error) {
	filter := "@public:{true}"
	if category != "" {
		filter += fmt.Sprintf(" @category:{%s}", category)
	}

	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName,
		Filter:       filter,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{"media_url", "prompt", "quality_score", "curated", "__vector_score"},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search %s: %w", indexName, err)
	}

	candidates := make([]rank.Candidate, 0, len(result.Entries))
	for _, entry := range result.Entries {
		candidates = append(candidates, candidateFromEntry(entry))
	}
	return candidates, nil
}

func candidateFromEntry(entry db.SearchEntry) rank.Candidate {
	id := strings.TrimPrefix(entry.Key, keyPrefix)

	quality := domain.DefaultQualityScore
	if raw, ok := entry.Fields["quality_score"]; ok && raw != "" {
		if q, err := strconv.ParseFloat(raw, 64); err == nil {
			quality = q
		}
	}

	curated := entry.Fields["curated"] == "true"

	return rank.NewCandidate(
		id,
		entry.Fields["media_url"],
		entry.Score,
		quality,
		curated,
		entry.Fields["prompt"],
	)
}

func itemKey(id string) string {
	return keyPrefix + id
}

func itemToFields(item *domain.ContentItem) map[string]string {
	fields := map[string]string{
		"media_url": item.MediaURL(),
		"prompt":    item.Prompt(),
		"tags":      strings.Join(item.Tags(), ","),
		"category":  item.Category(),
		"curated":   strconv.FormatBool(item.Curated()),
		"public":    strconv.FormatBool(item.Public()),
	}
	if item.HasQuality() {
		fields["quality_score"] = strconv.FormatFloat(item.QualityScore(), 'f', -1, 64)
	}
	if v := item.Embedding(); len(v) > 0 {
		fields["vector"] = vectorToBytes(v)
	}
	return fields
}

func itemFromFields(id string, fields map[string]string) domain.ContentItem {
	quality := 0.0
	hasQuality := false
	if raw, ok := fields["quality_score"]; ok && raw != "" {
		if q, err := strconv.ParseFloat(raw, 64); err == nil {
			quality = q
			hasQuality = true
		}
	}

	var tags []string
	if raw := fields["tags"]; raw != "" {
		tags = strings.Split(raw, ",")
	}

	return domain.ReconstructItem(
		id,
		fields["media_url"],
		fields["prompt"],
		quality, hasQuality,
		fields["curated"] == "true",
		fields["public"] == "true",
		fields["category"],
		tags,
		bytesToVector(fields["vector"]),
	)
}
