package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/domain/rank"
	"github.com/framelens/promptforge/internal/domain/runlog"
	"github.com/framelens/promptforge/internal/ratelimit"
	"github.com/framelens/promptforge/internal/repository/templates"
)

type mockLimiter struct {
	decision ratelimit.Decision
	calls    int
	buckets  []string
	keys     []string
}

func (m *mockLimiter) TryAcquire(_ context.Context, bucket, key string) ratelimit.Decision {
	m.calls++
	m.buckets = append(m.buckets, bucket)
	m.keys = append(m.keys, key)
	return m.decision
}

type mockLedger struct {
	balance    int64
	balanceErr error
	debitErr   error
	debits     []int64
}

func (m *mockLedger) Balance(_ context.Context, _ string) (int64, error) {
	return m.balance, m.balanceErr
}

func (m *mockLedger) Debit(_ context.Context, _ string, amount int64) error {
	m.debits = append(m.debits, amount)
	return m.debitErr
}

type mockCatalog struct {
	candidates []rank.Candidate
	err        error
	calls      int
}

func (m *mockCatalog) VectorSearch(_ context.Context, _ []float32, _ int, _ string) ([]rank.Candidate, error) {
	m.calls++
	return m.candidates, m.err
}

type mockTemplates struct {
	template    templates.Template
	templateErr error
	examples    []string
	examplesErr error
	categories  []string
}

func (m *mockTemplates) GetTemplate(_ context.Context, category string) (templates.Template, error) {
	m.categories = append(m.categories, category)
	return m.template, m.templateErr
}

func (m *mockTemplates) GetExamples(_ context.Context, _ string, _ int) ([]string, error) {
	return m.examples, m.examplesErr
}

type mockVision struct {
	result domain.AnalysisResult
	err    error
	calls  int
}

func (m *mockVision) Analyze(_ context.Context, _ string) (domain.AnalysisResult, error) {
	m.calls++
	return m.result, m.err
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	texts  []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.texts = append(m.texts, text)
	return m.result, m.err
}

type mockGenerator struct {
	text    string
	err     error
	systems []string
	users   []string
}

func (m *mockGenerator) Generate(_ context.Context, system, user string) (string, error) {
	m.systems = append(m.systems, system)
	m.users = append(m.users, user)
	return m.text, m.err
}

type mockRunLog struct {
	mu       sync.Mutex
	appended []*runlog.Record
	jobAlive bool
	jobErr   error
}

func (m *mockRunLog) Append(_ context.Context, rec *runlog.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, rec)
	return nil
}

func (m *mockRunLog) JobExists(_ context.Context, _ string) (bool, error) {
	return m.jobAlive, m.jobErr
}

type mockProgress struct {
	stages []string
}

func (m *mockProgress) Notify(_ context.Context, _, stage, _ string) {
	m.stages = append(m.stages, stage)
}

// testEnv bundles a service wired with permissive defaults; individual tests
// overwrite the mocks they care about before calling Run.
type testEnv struct {
	limiter   *mockLimiter
	ledger    *mockLedger
	catalog   *mockCatalog
	templates *mockTemplates
	vision    *mockVision
	embedder  *mockEmbedder
	generator *mockGenerator
	runs      *mockRunLog
	progress  *mockProgress
	svc       *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		limiter: &mockLimiter{decision: ratelimit.Decision{Allowed: true}},
		ledger:  &mockLedger{balance: 100},
		catalog: &mockCatalog{},
		templates: &mockTemplates{
			template: templates.Template{Category: "realistic", System: "You write realistic prompts."},
		},
		vision:    &mockVision{},
		embedder:  &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}},
		generator: &mockGenerator{text: `{"prompt": "a generated prompt"}`},
		runs:      &mockRunLog{jobAlive: true},
		progress:  &mockProgress{},
	}
	env.svc = New(Deps{
		Limiter:   env.limiter,
		Ledger:    env.ledger,
		Catalog:   env.catalog,
		Templates: env.templates,
		Vision:    env.vision,
		Embedder:  env.embedder,
		Generator: env.generator,
		RunLog:    env.runs,
		Progress:  env.progress,
	}, Config{CreditCost: 1, RetrievalK: 10, Recommendations: 3}, zap.NewNop())
	return env
}
