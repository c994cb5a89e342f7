// Package runlog persists generation records as append-only JSON documents.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/framelens/promptforge/internal/db"
	"github.com/framelens/promptforge/internal/domain/runlog"
)

// store is the consumer interface for run-log operations (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo implements the run log against runlog:{id} JSON keys and job:{id}
// existence probes for cancellation checks.
type Repo struct {
	store store
}

// New creates a run-log repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Append writes a record. Records are immutable once written.
func (r *Repo) Append(ctx context.Context, rec *runlog.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := r.store.JSONSet(ctx, recordKey(rec.ID), "$", data); err != nil {
		return fmt.Errorf("json.set %s: %w", recordKey(rec.ID), err)
	}
	return nil
}

// Get returns a record by id.
func (r *Repo) Get(ctx context.Context, id string) (runlog.Record, error) {
	raw, err := r.store.JSONGet(ctx, recordKey(id), "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return runlog.Record{}, db.ErrKeyNotFound
		}
		return runlog.Record{}, fmt.Errorf("json.get %s: %w", recordKey(id), err)
	}

	var records []runlog.Record
	if err := json.Unmarshal(raw, &records); err == nil && len(records) > 0 {
		return records[0], nil
	}

	var rec runlog.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return runlog.Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return rec, nil
}

// JobExists reports whether the parent job record is still present. A job
// deleted mid-run means the caller cancelled it.
func (r *Repo) JobExists(ctx context.Context, jobID string) (bool, error) {
	exists, err := r.store.Exists(ctx, jobKey(jobID))
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", jobKey(jobID), err)
	}
	return exists, nil
}

func recordKey(id string) string {
	return "runlog:" + id
}

func jobKey(id string) string {
	return "job:" + id
}
