package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAdmissionDenied signals a request rejected before any expensive work began.
	ErrAdmissionDenied = errors.New("admission denied")
	// ErrInsufficientCredits signals a billed caller without enough balance.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrUpstreamTransient signals a retryable upstream condition with retries exhausted.
	ErrUpstreamTransient = errors.New("upstream transient failure")
	// ErrUpstreamPermanent signals a non-retryable upstream rejection (4xx other than 429).
	ErrUpstreamPermanent = errors.New("upstream permanent failure")
	// ErrUpstreamTimeout signals an async job that exceeded its polling ceiling.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrNoUsableInput signals a request with neither caller text nor analysis output.
	ErrNoUsableInput = errors.New("nothing to generate from")
	// ErrGenerationUnrecoverable signals that generation and all fallbacks produced no text.
	ErrGenerationUnrecoverable = errors.New("generation produced no output")
	// ErrItemNotFound signals a missing catalog item.
	ErrItemNotFound = errors.New("item not found")
	// ErrTemplateNotFound signals a missing prompt template.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrJobCancelled signals that the parent job record disappeared mid-run.
	ErrJobCancelled = errors.New("job cancelled")
)

// AdmissionDeniedError wraps ErrAdmissionDenied with the wait-time reported to the caller.
type AdmissionDeniedError struct {
	Bucket     string
	RetryAfter time.Duration
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("%s: bucket %s, retry after %s", ErrAdmissionDenied.Error(), e.Bucket, e.RetryAfter)
}

func (e *AdmissionDeniedError) Unwrap() error { return ErrAdmissionDenied }

// NewAdmissionDenied creates a rate-limit rejection carrying the wait-time hint.
func NewAdmissionDenied(bucket string, retryAfter time.Duration) error {
	return &AdmissionDeniedError{Bucket: bucket, RetryAfter: retryAfter}
}

// InsufficientCreditsError wraps ErrInsufficientCredits with the amounts involved.
type InsufficientCreditsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("%s: need %d, have %d", ErrInsufficientCredits.Error(), e.Required, e.Balance)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// NewInsufficientCredits creates a balance rejection carrying the required amount.
func NewInsufficientCredits(required, balance int64) error {
	return &InsufficientCreditsError{Required: required, Balance: balance}
}
