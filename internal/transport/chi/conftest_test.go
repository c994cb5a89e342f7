package chi

import (
	"context"
	"net/http/httptest"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/domain/rank"
	"github.com/framelens/promptforge/internal/domain/runlog"
	"github.com/framelens/promptforge/internal/ratelimit"
	"github.com/framelens/promptforge/internal/repository/templates"
	bulkuc "github.com/framelens/promptforge/internal/usecase/bulk"
	healthuc "github.com/framelens/promptforge/internal/usecase/health"
	pipelineuc "github.com/framelens/promptforge/internal/usecase/pipeline"
)

// stubs shared by the handler tests; fields select the behavior per test.

type stubLimiter struct {
	decision ratelimit.Decision
	buckets  []string
	keys     []string
}

func (s *stubLimiter) TryAcquire(_ context.Context, bucket, key string) ratelimit.Decision {
	s.buckets = append(s.buckets, bucket)
	s.keys = append(s.keys, key)
	return s.decision
}

type stubLedger struct {
	balance int64
}

func (s *stubLedger) Balance(_ context.Context, _ string) (int64, error) { return s.balance, nil }
func (s *stubLedger) Debit(_ context.Context, _ string, _ int64) error   { return nil }

type stubCatalog struct {
	candidates []rank.Candidate
}

func (s *stubCatalog) VectorSearch(_ context.Context, _ []float32, _ int, _ string) ([]rank.Candidate, error) {
	return s.candidates, nil
}

func (s *stubCatalog) GetItem(_ context.Context, id string) (domain.ContentItem, error) {
	return domain.NewContentItem(id, "https://cdn/"+id+".jpg"), nil
}

func (s *stubCatalog) UpdateAnalysis(_ context.Context, _ *domain.ContentItem) error { return nil }

type stubTemplates struct{}

func (s *stubTemplates) GetTemplate(_ context.Context, cat string) (templates.Template, error) {
	return templates.Template{Category: cat, System: "You write prompts."}, nil
}

func (s *stubTemplates) GetExamples(_ context.Context, _ string, _ int) ([]string, error) {
	return nil, nil
}

type stubVision struct {
	result domain.AnalysisResult
	err    error
}

func (s *stubVision) Analyze(_ context.Context, _ string) (domain.AnalysisResult, error) {
	return s.result, s.err
}

type stubEmbedder struct{}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{0.1}}, nil
}

type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	return s.text, s.err
}

type stubRunLog struct{}

func (s *stubRunLog) Append(_ context.Context, _ *runlog.Record) error    { return nil }
func (s *stubRunLog) JobExists(_ context.Context, _ string) (bool, error) { return true, nil }

type stubPinger struct{ err error }

func (s *stubPinger) Ping(_ context.Context) error { return s.err }

// env bundles the stubbed services behind a running test server.
type env struct {
	limiter   *stubLimiter
	ledger    *stubLedger
	vision    *stubVision
	generator *stubGenerator
	pinger    *stubPinger
	server    *httptest.Server
}

func newEnv() *env {
	e := &env{
		limiter:   &stubLimiter{decision: ratelimit.Decision{Allowed: true}},
		ledger:    &stubLedger{balance: 100},
		vision:    &stubVision{},
		generator: &stubGenerator{text: `{"prompt": "a generated prompt"}`},
		pinger:    &stubPinger{},
	}

	logger := zap.NewNop()
	catalog := &stubCatalog{}

	pipeline := pipelineuc.New(pipelineuc.Deps{
		Limiter:   e.limiter,
		Ledger:    e.ledger,
		Catalog:   catalog,
		Templates: &stubTemplates{},
		Vision:    e.vision,
		Embedder:  &stubEmbedder{},
		Generator: e.generator,
		RunLog:    &stubRunLog{},
	}, pipelineuc.Config{}, logger)

	bulk := bulkuc.New(catalog, e.vision, &stubEmbedder{}, e.limiter, bulkuc.Config{}, logger)
	health := healthuc.New(e.pinger, nil)

	srv := NewServer(pipeline, bulk, health, logger)
	r := chirouter.NewRouter()
	srv.Routes(r)
	e.server = httptest.NewServer(r)
	return e
}

func (e *env) close() { e.server.Close() }

func deny(after time.Duration) ratelimit.Decision {
	return ratelimit.Decision{Allowed: false, RetryAfter: after}
}
