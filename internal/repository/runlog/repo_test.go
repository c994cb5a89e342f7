package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/framelens/promptforge/internal/domain/runlog"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	jsonSetFn func(ctx context.Context, key, path string, data []byte) error
	jsonGetFn func(ctx context.Context, key string, paths ...string) ([]byte, error)
	existsFn  func(ctx context.Context, key string) (bool, error)
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, errors.New("not configured")
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func TestAppend_WritesRecordKey(t *testing.T) {
	var gotKey string
	var gotData []byte
	ms := &mockStore{
		jsonSetFn: func(_ context.Context, key, path string, data []byte) error {
			gotKey = key
			gotData = data
			if path != "$" {
				t.Errorf("unexpected path: %s", path)
			}
			return nil
		},
	}
	repo := New(ms)

	rec := runlog.Record{
		ID:              "r1",
		UserID:          "u1",
		Category:        "cinematic",
		GeneratedPrompt: "a wide shot",
		Billed:          true,
		Outcome:         runlog.OutcomeSuccess,
		CreatedAt:       time.Now(),
	}
	if err := repo.Append(context.Background(), &rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "runlog:r1" {
		t.Errorf("unexpected key: %s", gotKey)
	}

	var decoded runlog.Record
	if err := json.Unmarshal(gotData, &decoded); err != nil {
		t.Fatalf("stored data not valid JSON: %v", err)
	}
	if decoded.GeneratedPrompt != "a wide shot" || !decoded.Billed {
		t.Errorf("unexpected stored record: %+v", decoded)
	}
}

func TestGet_UnwrapsJSONPathArray(t *testing.T) {
	ms := &mockStore{
		jsonGetFn: func(_ context.Context, key string, _ ...string) ([]byte, error) {
			if key != "runlog:r1" {
				t.Errorf("unexpected key: %s", key)
			}
			return []byte(`[{"id":"r1","category":"anime","outcome":"success"}]`), nil
		},
	}
	repo := New(ms)

	rec, err := repo.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "r1" || rec.Category != "anime" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestJobExists(t *testing.T) {
	ms := &mockStore{
		existsFn: func(_ context.Context, key string) (bool, error) {
			return key == "job:alive", nil
		},
	}
	repo := New(ms)

	exists, err := repo.JobExists(context.Background(), "alive")
	if err != nil || !exists {
		t.Errorf("expected alive job, got %v %v", exists, err)
	}

	exists, err = repo.JobExists(context.Background(), "gone")
	if err != nil || exists {
		t.Errorf("expected missing job, got %v %v", exists, err)
	}
}
