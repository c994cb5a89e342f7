// Package runlog defines the immutable record written once per pipeline run.
package runlog

import "time"

// Record captures the inputs and outputs of one generation run.
// It is created once and never mutated afterward.
type Record struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id,omitempty"`
	CorrelationKey    string    `json:"correlation_key,omitempty"`
	InputText         string    `json:"input_text,omitempty"`
	ImageURL          string    `json:"image_url,omitempty"`
	Category          string    `json:"category"`
	GeneratedPrompt   string    `json:"generated_prompt,omitempty"`
	TopMatchID        string    `json:"top_match_id,omitempty"`
	RecommendationIDs []string  `json:"recommendation_ids,omitempty"`
	Analysis          Analysis  `json:"analysis"`
	Billed            bool      `json:"billed"`
	Outcome           string    `json:"outcome"`
	Reason            string    `json:"reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Analysis is the snapshot of the vision stage stored with the record.
type Analysis struct {
	Description string   `json:"description,omitempty"`
	Mood        string   `json:"mood,omitempty"`
	Lighting    string   `json:"lighting,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)
