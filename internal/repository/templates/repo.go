// Package templates serves per-category prompt templates and curated example
// prompts, both stored as JSON documents.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/framelens/promptforge/internal/db"
	"github.com/framelens/promptforge/internal/domain"
)

const genericKey = "generic"

// store is the consumer interface for template operations (ISP).
type store interface {
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONSet(ctx context.Context, key, path string, data []byte) error
}

// Template is the generation instruction set for one style category.
type Template struct {
	Category string `json:"category"`
	System   string `json:"system"`
	Guidance string `json:"guidance,omitempty"`
}

// Repo implements the template store against keys template:{category}.
type Repo struct {
	store store
}

// New creates a template repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// GetTemplate returns the template for a category, falling back to the generic
// template when the category has none.
func (r *Repo) GetTemplate(ctx context.Context, category string) (Template, error) {
	tpl, err := r.get(ctx, category)
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		return Template{}, err
	}
	if category == genericKey {
		return Template{}, domain.ErrTemplateNotFound
	}
	return r.get(ctx, genericKey)
}

// PutTemplate stores a template under its category key.
func (r *Repo) PutTemplate(ctx context.Context, tpl Template) error {
	data, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	if err := r.store.JSONSet(ctx, templateKey(tpl.Category), "$", data); err != nil {
		return fmt.Errorf("json.set %s: %w", templateKey(tpl.Category), err)
	}
	return nil
}

// GetExamples returns up to n curated example prompts for a category.
// A category without examples yields nil, not an error.
func (r *Repo) GetExamples(ctx context.Context, category string, n int) ([]string, error) {
	raw, err := r.store.JSONGet(ctx, examplesKey(category), "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("json.get %s: %w", examplesKey(category), err)
	}

	examples, err := decodeOne[[]string](raw)
	if err != nil {
		return nil, fmt.Errorf("decode examples %s: %w", category, err)
	}
	if n > 0 && len(examples) > n {
		examples = examples[:n]
	}
	return examples, nil
}

func (r *Repo) get(ctx context.Context, category string) (Template, error) {
	raw, err := r.store.JSONGet(ctx, templateKey(category), "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Template{}, domain.ErrTemplateNotFound
		}
		return Template{}, fmt.Errorf("json.get %s: %w", templateKey(category), err)
	}

	tpl, err := decodeOne[Template](raw)
	if err != nil {
		return Template{}, fmt.Errorf("decode template %s: %w", category, err)
	}
	return tpl, nil
}

// decodeOne unwraps the JSONPath array form ([value]) that JSON.GET $ returns,
// accepting a bare value as well.
func decodeOne[T any](raw []byte) (T, error) {
	var out T

	var arr []T
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return arr[0], nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func templateKey(category string) string {
	return "template:" + category
}

func examplesKey(category string) string {
	return "examples:" + category
}
