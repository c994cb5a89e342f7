package templates

import (
	"context"
	"errors"
	"testing"

	"github.com/framelens/promptforge/internal/db"
	"github.com/framelens/promptforge/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	jsonGetFn func(ctx context.Context, key string, paths ...string) ([]byte, error)
	jsonSetFn func(ctx context.Context, key, path string, data []byte) error
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	return nil
}

func TestGetTemplate_CategoryHit(t *testing.T) {
	ms := &mockStore{
		jsonGetFn: func(_ context.Context, key string, _ ...string) ([]byte, error) {
			if key != "template:anime" {
				t.Errorf("unexpected key: %s", key)
			}
			return []byte(`[{"category":"anime","system":"anime system prompt"}]`), nil
		},
	}
	repo := New(ms)

	tpl, err := repo.GetTemplate(context.Background(), "anime")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.System != "anime system prompt" {
		t.Errorf("unexpected template: %+v", tpl)
	}
}

func TestGetTemplate_FallsBackToGeneric(t *testing.T) {
	var keys []string
	ms := &mockStore{
		jsonGetFn: func(_ context.Context, key string, _ ...string) ([]byte, error) {
			keys = append(keys, key)
			if key == "template:generic" {
				return []byte(`[{"category":"generic","system":"generic system prompt"}]`), nil
			}
			return nil, db.ErrKeyNotFound
		},
	}
	repo := New(ms)

	tpl, err := repo.GetTemplate(context.Background(), "minimalist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.System != "generic system prompt" {
		t.Errorf("unexpected template: %+v", tpl)
	}
	if len(keys) != 2 || keys[0] != "template:minimalist" || keys[1] != "template:generic" {
		t.Errorf("unexpected lookup order: %v", keys)
	}
}

func TestGetTemplate_NothingStored(t *testing.T) {
	repo := New(&mockStore{})

	_, err := repo.GetTemplate(context.Background(), "fantasy")
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestGetTemplate_StoreErrorNotMaskedAsFallback(t *testing.T) {
	ms := &mockStore{
		jsonGetFn: func(_ context.Context, _ string, _ ...string) ([]byte, error) {
			return nil, errors.New("connection reset")
		},
	}
	repo := New(ms)

	_, err := repo.GetTemplate(context.Background(), "anime")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrTemplateNotFound) {
		t.Error("store error should not map to ErrTemplateNotFound")
	}
}

func TestGetExamples_LimitsCount(t *testing.T) {
	ms := &mockStore{
		jsonGetFn: func(_ context.Context, key string, _ ...string) ([]byte, error) {
			if key != "examples:cinematic" {
				t.Errorf("unexpected key: %s", key)
			}
			return []byte(`[["one","two","three","four"]]`), nil
		},
	}
	repo := New(ms)

	examples, err := repo.GetExamples(context.Background(), "cinematic", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(examples) != 2 || examples[0] != "one" {
		t.Errorf("unexpected examples: %v", examples)
	}
}

func TestGetExamples_MissingYieldsNil(t *testing.T) {
	repo := New(&mockStore{})

	examples, err := repo.GetExamples(context.Background(), "product", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if examples != nil {
		t.Errorf("expected nil, got %v", examples)
	}
}

func TestPutTemplate_WritesCategoryKey(t *testing.T) {
	var gotKey string
	ms := &mockStore{
		jsonSetFn: func(_ context.Context, key, path string, _ []byte) error {
			gotKey = key
			if path != "$" {
				t.Errorf("unexpected path: %s", path)
			}
			return nil
		},
	}
	repo := New(ms)

	err := repo.PutTemplate(context.Background(), Template{Category: "editorial", System: "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "template:editorial" {
		t.Errorf("unexpected key: %s", gotKey)
	}
}
