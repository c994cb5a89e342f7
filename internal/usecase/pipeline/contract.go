package pipeline

import (
	"context"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/domain/rank"
	"github.com/framelens/promptforge/internal/domain/runlog"
	"github.com/framelens/promptforge/internal/ratelimit"
	"github.com/framelens/promptforge/internal/repository/templates"
)

// Consumer interfaces for everything the coordinator touches (ISP). Each is
// satisfied by one repository or transport client and mocked in tests.

// Catalog retrieves ranked-candidate material by vector similarity.
type Catalog interface {
	VectorSearch(ctx context.Context, vector []float32, k int, category string) ([]rank.Candidate, error)
}

// Ledger reads and charges caller credit balances.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, amount int64) error
}

// TemplateStore serves per-category generation templates and curated examples.
type TemplateStore interface {
	GetTemplate(ctx context.Context, category string) (templates.Template, error)
	GetExamples(ctx context.Context, category string, n int) ([]string, error)
}

// Vision analyzes one input image, synchronously or through job polling.
type Vision interface {
	Analyze(ctx context.Context, imageURL string) (domain.AnalysisResult, error)
}

// Generator produces the final prompt text from system and user payloads.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Limiter gates admission per caller key.
type Limiter interface {
	TryAcquire(ctx context.Context, bucket, key string) ratelimit.Decision
}

// RunLog persists run records and exposes the parent-job liveness check.
type RunLog interface {
	Append(ctx context.Context, rec *runlog.Record) error
	JobExists(ctx context.Context, jobID string) (bool, error)
}

// Progress is the fire-and-forget per-stage notification channel.
type Progress interface {
	Notify(ctx context.Context, correlationKey, stage, detail string)
}
