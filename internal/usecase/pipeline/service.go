// Package pipeline sequences one generation request through its stages:
// admission, analysis, embedding, retrieval, ranking, category resolution,
// generation, and persistence. Non-essential stages degrade instead of
// aborting; only admission, missing input, and an empty generation result
// terminate a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/domain/category"
	"github.com/framelens/promptforge/internal/domain/rank"
	"github.com/framelens/promptforge/internal/domain/runlog"
	"github.com/framelens/promptforge/internal/metrics"
	"github.com/framelens/promptforge/internal/usecase/classify"
	ranksvc "github.com/framelens/promptforge/internal/usecase/rank"
)

// defaultSystem is the generation instruction used when even the generic
// template is missing from the store. Kept minimal on purpose; the stored
// templates carry the real per-category voice.
const defaultSystem = `You write concise, vivid image-generation prompts. ` +
	`Respond with a JSON object of the form {"prompt": "..."}.`

// Config tunes one coordinator instance.
type Config struct {
	// Bucket is the rate-limit bucket charged per billed run.
	Bucket string
	// AnonBucket is the tighter bucket charged when no user is attached.
	AnonBucket string
	// CreditCost is debited from billed callers after a non-empty result.
	CreditCost int64
	// RetrievalK is the vector-search candidate count.
	RetrievalK int
	// Recommendations is the ranked-item count surfaced after the top match.
	Recommendations int
}

func (c *Config) applyDefaults() {
	if c.Bucket == "" {
		c.Bucket = "generation"
	}
	if c.AnonBucket == "" {
		c.AnonBucket = "generation_anon"
	}
	if c.CreditCost <= 0 {
		c.CreditCost = 1
	}
	if c.RetrievalK <= 0 {
		c.RetrievalK = 10
	}
	if c.Recommendations <= 0 {
		c.Recommendations = ranksvc.DefaultRecommendations
	}
}

// Deps are the collaborators one coordinator is wired with.
type Deps struct {
	Limiter   Limiter
	Ledger    Ledger
	Catalog   Catalog
	Templates TemplateStore
	Vision    Vision
	Embedder  domain.Embedder
	Generator Generator
	RunLog    RunLog
	Progress  Progress
}

// Request is one generation request. A non-empty UserID marks a billed caller.
type Request struct {
	UserID   string
	Text     string
	ImageURL string
	Category string
	// ClientKey identifies an unauthenticated caller for rate limiting. It is
	// derived server-side from the connection, never taken from the request
	// body, so callers cannot rotate it.
	ClientKey string
	// CorrelationKey addresses progress notifications only.
	CorrelationKey string
	// ParentJobID, when set, is checked before persistence; a missing job
	// record means the request was cancelled externally.
	ParentJobID string
}

// Result is the outcome of one successful run.
type Result struct {
	RunID           string
	Prompt          string
	Category        string
	TopMatch        *rank.Result
	Recommendations []rank.Result
	Analysis        domain.AnalysisResult
	// Degraded lists stages that failed or were skipped without aborting.
	Degraded []string
	Billed   bool
}

// Service is the pipeline coordinator.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New creates a coordinator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	return &Service{deps: deps, cfg: cfg, logger: logger}
}

// Run executes one request through every stage. The returned error is one of
// the admission or terminal sentinels from the domain package, or a wrapped
// infrastructure error; degraded stages are reported through the Result.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	runID := uuid.NewString()
	log := s.logger.With(zap.String("run_id", runID), zap.String("user_id", req.UserID))

	res := Result{RunID: runID}

	effectiveCategory, err := s.admit(ctx, req)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("rejected").Inc()
		return res, err
	}

	analysis := s.analyze(ctx, req, &res, log)
	if req.Text == "" && analysis.Empty() {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		s.persistFailure(ctx, req, runID, string(effectiveCategory), analysis, "no usable input", log)
		return res, domain.ErrNoUsableInput
	}
	res.Analysis = analysis

	vector := s.embed(ctx, req, analysis, &res, log)
	ranked := s.retrieve(ctx, vector, &res, log)
	res.TopMatch = ranked.TopMatch()
	res.Recommendations = ranked.Recommendations(s.cfg.Recommendations)

	if effectiveCategory == "" {
		effectiveCategory = classify.Classify(analysis.Tags(), analysis.Description()+" "+req.Text)
	}
	res.Category = string(effectiveCategory)

	prompt, err := s.generate(ctx, req, analysis, effectiveCategory, &ranked, &res, log)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		s.persistFailure(ctx, req, runID, res.Category, analysis, "generation produced no output", log)
		return res, err
	}
	res.Prompt = prompt

	if err := s.persist(ctx, req, &res, log); err != nil {
		if errors.Is(err, domain.ErrJobCancelled) {
			metrics.PipelineRunsTotal.WithLabelValues("cancelled").Inc()
			return res, err
		}
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		return res, err
	}

	metrics.PipelineRunsTotal.WithLabelValues("success").Inc()
	log.Info("pipeline run complete",
		zap.String("category", res.Category),
		zap.Int("recommendations", len(res.Recommendations)),
		zap.Strings("degraded", res.Degraded),
		zap.Bool("billed", res.Billed))
	return res, nil
}

// admit runs the rate-limit and balance checks and validates an explicit
// category choice, all before any expensive work.
func (s *Service) admit(ctx context.Context, req Request) (category.Key, error) {
	var effective category.Key
	if req.Category != "" {
		k, err := category.Parse(req.Category)
		if err != nil {
			return "", fmt.Errorf("admission: %w", err)
		}
		effective = k
	}

	bucketName := s.cfg.Bucket
	key := req.UserID
	if key == "" {
		bucketName = s.cfg.AnonBucket
		key = req.ClientKey
	}
	if key == "" {
		key = "anonymous"
	}

	if d := s.deps.Limiter.TryAcquire(ctx, bucketName, key); !d.Allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues(bucketName, "admission").Inc()
		return "", domain.NewAdmissionDenied(bucketName, d.RetryAfter)
	}

	if req.UserID != "" {
		balance, err := s.deps.Ledger.Balance(ctx, req.UserID)
		if err != nil {
			return "", fmt.Errorf("admission: balance check: %w", err)
		}
		if balance < s.cfg.CreditCost {
			return "", domain.NewInsufficientCredits(s.cfg.CreditCost, balance)
		}
	}
	return effective, nil
}

// analyze runs the vision stage. Failures degrade to an empty analysis.
func (s *Service) analyze(ctx context.Context, req Request, res *Result, log *zap.Logger) domain.AnalysisResult {
	if req.ImageURL == "" {
		return domain.AnalysisResult{}
	}

	s.notify(ctx, req, "analysis", "analyzing input image")
	defer observeStage("analysis", time.Now())

	analysis, err := s.deps.Vision.Analyze(ctx, req.ImageURL)
	if err != nil {
		log.Warn("image analysis failed, continuing without it", zap.Error(err))
		res.Degraded = append(res.Degraded, "analysis")
		return domain.AnalysisResult{}
	}
	return analysis
}

// embed vectorizes the best available text. Failures degrade to a nil vector.
func (s *Service) embed(ctx context.Context, req Request, analysis domain.AnalysisResult, res *Result, log *zap.Logger) []float32 {
	text := analysis.EmbeddingText()
	if analysis.Empty() {
		text = domain.TruncateForEmbedding(req.Text)
	}

	s.notify(ctx, req, "embedding", "vectorizing request")
	defer observeStage("embedding", time.Now())

	out, err := s.deps.Embedder.Embed(ctx, text)
	if err != nil {
		log.Warn("embedding failed, retrieval will be skipped", zap.Error(err))
		res.Degraded = append(res.Degraded, "embedding")
		return nil
	}
	return out.Embedding
}

// retrieve runs vector search and ranking. Without a vector the stage is
// skipped; a search failure degrades to an empty ranking.
func (s *Service) retrieve(ctx context.Context, vector []float32, res *Result, log *zap.Logger) ranksvc.Ranked {
	if vector == nil {
		metrics.PipelineStageSkippedTotal.WithLabelValues("retrieval", "no_embedding").Inc()
		return ranksvc.Rank(nil)
	}

	defer observeStage("retrieval", time.Now())

	candidates, err := s.deps.Catalog.VectorSearch(ctx, vector, s.cfg.RetrievalK, "")
	if err != nil {
		log.Warn("vector search failed, continuing with empty candidate set", zap.Error(err))
		res.Degraded = append(res.Degraded, "retrieval")
		return ranksvc.Rank(nil)
	}
	return ranksvc.Rank(candidates)
}

// generate builds the templated call and extracts the prompt. A failed or
// empty completion falls back to the analysis description; with neither, the
// run is unrecoverable.
func (s *Service) generate(
	ctx context.Context,
	req Request,
	analysis domain.AnalysisResult,
	cat category.Key,
	ranked *ranksvc.Ranked,
	res *Result,
	log *zap.Logger,
) (string, error) {
	s.notify(ctx, req, "generation", "composing prompt")
	defer observeStage("generation", time.Now())

	system := defaultSystem
	tpl, err := s.deps.Templates.GetTemplate(ctx, string(cat))
	switch {
	case err != nil:
		log.Warn("no template available, using built-in instructions",
			zap.String("category", string(cat)), zap.Error(err))
		res.Degraded = append(res.Degraded, "template")
	default:
		system = tpl.System
		if tpl.Guidance != "" {
			system += "\n" + tpl.Guidance
		}
	}

	examples, err := s.deps.Templates.GetExamples(ctx, string(cat), s.cfg.Recommendations)
	if err != nil {
		log.Warn("failed to load curated examples", zap.String("category", string(cat)), zap.Error(err))
		examples = nil
	}

	text, err := s.deps.Generator.Generate(ctx, system, s.userPayload(req, analysis, cat, examples, ranked))
	if err != nil {
		log.Warn("generation failed, falling back to analysis description", zap.Error(err))
		res.Degraded = append(res.Degraded, "generation")
		text = ""
	}

	prompt := ""
	if text != "" {
		prompt = extractPrompt(text)
	}
	if prompt == "" {
		prompt = analysis.Description()
	}
	if prompt == "" {
		return "", domain.ErrGenerationUnrecoverable
	}
	return prompt, nil
}

// userPayload assembles the in-context material for the generation call.
func (s *Service) userPayload(
	req Request,
	analysis domain.AnalysisResult,
	cat category.Key,
	examples []string,
	ranked *ranksvc.Ranked,
) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Style category: %s\n", cat)
	if req.Text != "" {
		fmt.Fprintf(&b, "Caller request: %s\n", req.Text)
	}
	if !analysis.Empty() {
		fmt.Fprintf(&b, "Image analysis: %s\n", analysis.Description())
		if analysis.Mood() != "" {
			fmt.Fprintf(&b, "Mood: %s\n", analysis.Mood())
		}
		if analysis.Lighting() != "" {
			fmt.Fprintf(&b, "Lighting: %s\n", analysis.Lighting())
		}
		if tags := analysis.Tags(); len(tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
		}
	}
	if len(examples) > 0 {
		b.WriteString("Curated example prompts:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "- %s\n", ex)
		}
	}
	if results := ranked.Results(); len(results) > 0 {
		b.WriteString("Prompts from similar catalog images:\n")
		n := len(results)
		if n > s.cfg.Recommendations+1 {
			n = s.cfg.Recommendations + 1
		}
		for i := 0; i < n; i++ {
			if p := results[i].Prompt(); p != "" {
				fmt.Fprintf(&b, "- %s\n", p)
			}
		}
	}
	return b.String()
}

// persist is the single commit point: cancellation check, billing, run log.
func (s *Service) persist(ctx context.Context, req Request, res *Result, log *zap.Logger) error {
	s.notify(ctx, req, "persistence", "recording result")
	defer observeStage("persistence", time.Now())

	if req.ParentJobID != "" {
		alive, err := s.deps.RunLog.JobExists(ctx, req.ParentJobID)
		if err != nil {
			log.Warn("could not verify parent job, proceeding", zap.Error(err))
		} else if !alive {
			log.Info("parent job gone, dropping result", zap.String("job_id", req.ParentJobID))
			return domain.ErrJobCancelled
		}
	}

	if req.UserID != "" && res.Prompt != "" {
		if err := s.deps.Ledger.Debit(ctx, req.UserID, s.cfg.CreditCost); err != nil {
			// The result already exists; losing it over a billing race
			// serves nobody. The run is recorded as unbilled instead.
			log.Error("debit failed after successful generation", zap.Error(err))
		} else {
			res.Billed = true
		}
	}

	rec := s.record(req, res.RunID, res.Category, res.Analysis, runlog.OutcomeSuccess, "")
	rec.GeneratedPrompt = res.Prompt
	rec.Billed = res.Billed
	if res.TopMatch != nil {
		rec.TopMatchID = res.TopMatch.ItemID()
	}
	for i := range res.Recommendations {
		rec.RecommendationIDs = append(rec.RecommendationIDs, res.Recommendations[i].ItemID())
	}
	if err := s.deps.RunLog.Append(ctx, rec); err != nil {
		log.Error("failed to append run record", zap.Error(err))
	}
	return nil
}

// persistFailure records a terminal abort. Best-effort; the abort error is
// what the caller sees either way.
func (s *Service) persistFailure(ctx context.Context, req Request, runID, cat string, analysis domain.AnalysisResult, reason string, log *zap.Logger) {
	rec := s.record(req, runID, cat, analysis, runlog.OutcomeFailed, reason)
	if err := s.deps.RunLog.Append(ctx, rec); err != nil {
		log.Error("failed to append failure record", zap.Error(err))
	}
}

func (s *Service) record(req Request, runID, cat string, analysis domain.AnalysisResult, outcome, reason string) *runlog.Record {
	return &runlog.Record{
		ID:             runID,
		UserID:         req.UserID,
		CorrelationKey: req.CorrelationKey,
		InputText:      req.Text,
		ImageURL:       req.ImageURL,
		Category:       cat,
		Analysis: runlog.Analysis{
			Description: analysis.Description(),
			Mood:        analysis.Mood(),
			Lighting:    analysis.Lighting(),
			Colors:      analysis.Colors(),
			Tags:        analysis.Tags(),
		},
		Outcome:   outcome,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Service) notify(ctx context.Context, req Request, stage, detail string) {
	if s.deps.Progress == nil {
		return
	}
	s.deps.Progress.Notify(ctx, req.CorrelationKey, stage, detail)
}

func observeStage(stage string, start time.Time) {
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
