// Package chi exposes the HTTP API: prompt generation, batch analysis,
// health, and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/domain/category"
	logpkg "github.com/framelens/promptforge/internal/logger"
	bulkuc "github.com/framelens/promptforge/internal/usecase/bulk"
	healthuc "github.com/framelens/promptforge/internal/usecase/health"
	pipelineuc "github.com/framelens/promptforge/internal/usecase/pipeline"
)

// Error codes returned to clients.
const (
	codeBadRequest          = "bad_request"
	codeRateLimited         = "rate_limited"
	codeInsufficientCredits = "insufficient_credits"
	codeNoUsableInput       = "no_usable_input"
	codeGenerationFailed    = "generation_failed"
	codeUpstreamTimeout     = "upstream_timeout"
	codeUpstreamError       = "upstream_error"
	codeInternalError       = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	pipeline      *pipelineuc.Service
	bulk          *bulkuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(pipeline *pipelineuc.Service, bulk *bulkuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		bulk:     bulk,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		admissionDeniedHandler,
		insufficientCreditsHandler,
		sentinelHandler(domain.ErrNoUsableInput, http.StatusUnprocessableEntity, codeNoUsableInput),
		sentinelHandler(domain.ErrGenerationUnrecoverable, http.StatusBadGateway, codeGenerationFailed),
		sentinelHandler(domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, codeUpstreamTimeout),
		sentinelHandler(domain.ErrUpstreamTransient, http.StatusBadGateway, codeUpstreamError),
		sentinelHandler(domain.ErrUpstreamPermanent, http.StatusBadGateway, codeUpstreamError),
	}
	return s
}

// Routes mounts every handler on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/prompts", s.GeneratePrompt)
	r.Post("/v1/bulk/analyze", s.BulkAnalyze)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// GeneratePromptRequest is the body of POST /v1/prompts.
type GeneratePromptRequest struct {
	UserID         string `json:"user_id,omitempty"`
	Text           string `json:"text,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Category       string `json:"category,omitempty"`
	CorrelationKey string `json:"correlation_key,omitempty"`
	ParentJobID    string `json:"parent_job_id,omitempty"`
}

// RankedItem is one retrieval result in the response.
type RankedItem struct {
	ItemID string  `json:"item_id"`
	Prompt string  `json:"prompt,omitempty"`
	Weight float64 `json:"weight"`
}

// AnalysisBody is the analysis snapshot in the response.
type AnalysisBody struct {
	Description string   `json:"description,omitempty"`
	Mood        string   `json:"mood,omitempty"`
	Lighting    string   `json:"lighting,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// GeneratePromptResponse is the body of a successful POST /v1/prompts.
type GeneratePromptResponse struct {
	RunID           string        `json:"run_id"`
	Status          string        `json:"status"`
	Prompt          string        `json:"prompt,omitempty"`
	Category        string        `json:"category,omitempty"`
	TopMatch        *RankedItem   `json:"top_match,omitempty"`
	Recommendations []RankedItem  `json:"recommendations,omitempty"`
	Analysis        *AnalysisBody `json:"analysis,omitempty"`
	Degraded        []string      `json:"degraded,omitempty"`
	Billed          bool          `json:"billed"`
}

// GeneratePrompt handles POST /v1/prompts.
func (s *Server) GeneratePrompt(w http.ResponseWriter, r *http.Request) {
	var req GeneratePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" && req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Either text or image_url is required")
		return
	}
	if req.Category != "" {
		if _, err := category.Parse(req.Category); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
	}

	res, err := s.pipeline.Run(r.Context(), pipelineuc.Request{
		UserID:         req.UserID,
		Text:           req.Text,
		ImageURL:       req.ImageURL,
		Category:       req.Category,
		ClientKey:      clientFingerprint(r),
		CorrelationKey: req.CorrelationKey,
		ParentJobID:    req.ParentJobID,
	})
	if errors.Is(err, domain.ErrJobCancelled) {
		// The parent job was withdrawn mid-run. Not a fault.
		writeJSON(w, http.StatusOK, GeneratePromptResponse{RunID: res.RunID, Status: "cancelled"})
		return
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := GeneratePromptResponse{
		RunID:    res.RunID,
		Status:   "complete",
		Prompt:   res.Prompt,
		Category: res.Category,
		Degraded: res.Degraded,
		Billed:   res.Billed,
	}
	if res.TopMatch != nil {
		resp.TopMatch = &RankedItem{
			ItemID: res.TopMatch.ItemID(),
			Prompt: res.TopMatch.Prompt(),
			Weight: res.TopMatch.RankWeight(),
		}
	}
	for i := range res.Recommendations {
		rec := &res.Recommendations[i]
		resp.Recommendations = append(resp.Recommendations, RankedItem{
			ItemID: rec.ItemID(),
			Prompt: rec.Prompt(),
			Weight: rec.RankWeight(),
		})
	}
	if !res.Analysis.Empty() {
		resp.Analysis = &AnalysisBody{
			Description: res.Analysis.Description(),
			Mood:        res.Analysis.Mood(),
			Lighting:    res.Analysis.Lighting(),
			Colors:      res.Analysis.Colors(),
			Tags:        res.Analysis.Tags(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// BulkAnalyzeRequest is the body of POST /v1/bulk/analyze.
type BulkAnalyzeRequest struct {
	CallerKey string   `json:"caller_key,omitempty"`
	ItemIDs   []string `json:"item_ids"`
}

// BulkItemResult is one per-item outcome in the batch response.
type BulkItemResult struct {
	ItemID   string `json:"item_id"`
	Category string `json:"category,omitempty"`
	Embedded bool   `json:"embedded"`
	Error    string `json:"error,omitempty"`
}

// BulkAnalyzeResponse is the body of a POST /v1/bulk/analyze response.
type BulkAnalyzeResponse struct {
	Items     []BulkItemResult `json:"items"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

// BulkAnalyze handles POST /v1/bulk/analyze.
func (s *Server) BulkAnalyze(w http.ResponseWriter, r *http.Request) {
	var req BulkAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "item_ids is required")
		return
	}

	callerKey := req.CallerKey
	if callerKey == "" {
		callerKey = clientFingerprint(r)
	}
	results, err := s.bulk.Run(r.Context(), callerKey, req.ItemIDs)
	if err != nil {
		if errors.Is(err, domain.ErrAdmissionDenied) {
			s.handleDomainError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	succeeded, failed := 0, 0
	items := make([]BulkItemResult, len(results))
	for i, res := range results {
		items[i] = BulkItemResult{
			ItemID:   res.ItemID,
			Category: res.Category,
			Embedded: res.Embedded,
		}
		if res.Err != nil {
			items[i].Error = res.Err.Error()
			failed++
		} else {
			succeeded++
		}
	}

	writeJSON(w, http.StatusOK, BulkAnalyzeResponse{
		Items:     items,
		Succeeded: succeeded,
		Failed:    failed,
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Check(r.Context()); err != nil {
		logpkg.FromContext(r.Context()).Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrAdmissionDenied,
		domain.ErrInsufficientCredits,
		domain.ErrNoUsableInput,
		domain.ErrGenerationUnrecoverable,
		domain.ErrUpstreamTimeout,
		domain.ErrUpstreamTransient,
		domain.ErrUpstreamPermanent,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// admissionDeniedHandler handles rate-limit rejections with a Retry-After
// header and the wait time in the body.
func admissionDeniedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrAdmissionDenied) {
		return false
	}
	var denied *domain.AdmissionDeniedError
	if errors.As(err, &denied) {
		seconds := int(math.Ceil(denied.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"code":              codeRateLimited,
			"message":           msg,
			"retry_after_sec":   seconds,
			"rate_limit_bucket": denied.Bucket,
		})
		return true
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	return true
}

// insufficientCreditsHandler handles balance rejections with the amounts the
// caller needs to correct.
func insufficientCreditsHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		return false
	}
	var credits *domain.InsufficientCreditsError
	if errors.As(err, &credits) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"code":     codeInsufficientCredits,
			"message":  msg,
			"required": credits.Required,
			"balance":  credits.Balance,
		})
		return true
	}
	writeError(w, http.StatusPaymentRequired, codeInsufficientCredits, msg)
	return true
}

// handleDomainError logs through the request-scoped logger so the entry
// carries the request id from the wide-event middleware.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
