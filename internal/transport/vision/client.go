// Package vision is the HTTP client for the image analysis service. The
// service answers either synchronously with an analysis document or with a job
// handle that must be polled until the result appears.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/metrics"
	"github.com/framelens/promptforge/internal/upstream"
)

// errAnalysisFailed marks an explicit failure status from the service.
var errAnalysisFailed = errors.New("analysis failed")

// Client calls the vision analysis service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pollCfg    upstream.PollConfig
	logger     *zap.Logger
}

// Config holds the vision service settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
	PollAttempts int
	Logger       *zap.Logger
}

// New creates a vision client.
func New(cfg *Config) *Client {
	pollCfg := upstream.PollDefault
	if cfg.PollInterval > 0 {
		pollCfg.Interval = cfg.PollInterval
	}
	if cfg.PollAttempts > 0 {
		pollCfg.MaxAttempts = cfg.PollAttempts
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		pollCfg:    pollCfg,
		logger:     cfg.Logger,
	}
}

// analysisDoc is the wire shape of one analysis result. A present description
// is the completion signature.
type analysisDoc struct {
	Description string   `json:"description"`
	Mood        string   `json:"mood"`
	Lighting    string   `json:"lighting"`
	Colors      []string `json:"colors"`
	Tags        []string `json:"tags"`
	JobID       string   `json:"job_id"`
	Status      string   `json:"status"`
	Error       string   `json:"error"`
}

// Analyze submits an image and returns its analysis. The whole job (submit
// plus polling when the service answers asynchronously) is retried per the job
// policy on transient failures and polling timeouts.
func (c *Client) Analyze(ctx context.Context, imageURL string) (domain.AnalysisResult, error) {
	start := time.Now()

	resp, err := upstream.Do(ctx, "vision", upstream.JobPolicy, c.logger, func(ctx context.Context) (*upstream.Response, error) {
		return c.runJob(ctx, imageURL)
	})

	metrics.UpstreamCallDuration.WithLabelValues("vision").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues("vision", "error").Inc()
		return domain.AnalysisResult{}, fmt.Errorf("vision analyze: %w", err)
	}
	if !resp.OK() {
		metrics.UpstreamCallsTotal.WithLabelValues("vision", "error").Inc()
		return domain.AnalysisResult{}, fmt.Errorf("vision analyze: status %d: %s: %w",
			resp.StatusCode, resp.Body, domain.ErrUpstreamPermanent)
	}

	metrics.UpstreamCallsTotal.WithLabelValues("vision", "success").Inc()
	return parseAnalysis(resp.Body)
}

// runJob performs one full submit-then-poll attempt. A polling timeout comes
// back as a 504 response so the job-level retry treats it as transient.
func (c *Client) runJob(ctx context.Context, imageURL string) (*upstream.Response, error) {
	resp, err := c.submit(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, nil
	}

	var doc analysisDoc
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}

	// Synchronous answer: the analysis document came back directly.
	if doc.Description != "" {
		return resp, nil
	}
	if doc.JobID == "" {
		return nil, fmt.Errorf("submit response carries neither result nor job handle")
	}

	payload, err := upstream.PollJob(ctx, "vision", c.pollCfg, c.logger, func(ctx context.Context) (bool, []byte, error) {
		return c.poll(ctx, doc.JobID)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUpstreamTimeout):
			// Transient from the job's point of view: the whole job may be retried.
			return &upstream.Response{StatusCode: http.StatusGatewayTimeout, Body: []byte("analysis polling ceiling reached")}, nil
		case errors.Is(err, errAnalysisFailed):
			// Explicit failure status: terminal for this job, never retried.
			return &upstream.Response{StatusCode: http.StatusUnprocessableEntity, Body: []byte(err.Error())}, nil
		default:
			return nil, err
		}
	}

	return &upstream.Response{StatusCode: http.StatusOK, Body: payload}, nil
}

// submit posts the image for analysis, one attempt.
func (c *Client) submit(ctx context.Context, imageURL string) (*upstream.Response, error) {
	body, err := json.Marshal(map[string]string{"image_url": imageURL})
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.do(req)
}

// poll checks the job once. An explicit "failed" status stops polling with an
// error; a present description means completion.
func (c *Client) poll(ctx context.Context, jobID string) (bool, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, http.NoBody)
	if err != nil {
		return false, nil, fmt.Errorf("build poll request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.do(req)
	if err != nil {
		return false, nil, err
	}
	if !resp.OK() {
		return false, nil, fmt.Errorf("poll status %d: %s", resp.StatusCode, resp.Body)
	}

	var doc analysisDoc
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return false, nil, fmt.Errorf("decode poll response: %w", err)
	}
	if doc.Status == "failed" {
		if doc.Error != "" {
			return false, nil, fmt.Errorf("%w: %s", errAnalysisFailed, doc.Error)
		}
		return false, nil, errAnalysisFailed
	}
	if doc.Description != "" {
		return true, resp.Body, nil
	}
	return false, nil, nil
}

func (c *Client) do(req *http.Request) (*upstream.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vision response: %w", err)
	}

	return &upstream.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}, nil
}

func parseAnalysis(body []byte) (domain.AnalysisResult, error) {
	var doc analysisDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode analysis: %w", err)
	}
	return domain.NewAnalysisResult(doc.Description, doc.Mood, doc.Lighting, doc.Colors, doc.Tags), nil
}
