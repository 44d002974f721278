package exerciseservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rage/secret-project-331-sub001/internal/config"
	"github.com/rage/secret-project-331-sub001/internal/metrics"
	"github.com/rage/secret-project-331-sub001/internal/models"
)

// ErrServiceUnavailable is matched by every transport, status and decoding failure.
var ErrServiceUnavailable = errors.New("exercise service unavailable")

const (
	endpointGrade         = "grade"
	endpointPublicSpec    = "public_spec"
	endpointModelSolution = "model_solution"

	maxErrorBodyBytes = 4096
)

// specRequest is accepted by the public spec and model solution endpoints.
type specRequest struct {
	RequestID   uuid.UUID       `json:"request_id"`
	PrivateSpec json.RawMessage `json:"private_spec"`
	UploadURL   *string         `json:"upload_url"`
}

// Client talks to external exercise services. Outbound requests are rate limited per service slug.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(cfg config.GradingConfig, logger *slog.Logger) *Client {
	return NewClientWithHTTPClient(&http.Client{Timeout: cfg.GraderTimeout}, cfg, logger)
}

func NewClientWithHTTPClient(httpClient *http.Client, cfg config.GradingConfig, logger *slog.Logger) *Client {
	burst := cfg.GraderBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		limit:      rate.Limit(cfg.GraderRequestsPerSecond),
		burst:      burst,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Grade sends a task submission to the grade endpoint of the task's exercise service.
func (c *Client) Grade(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, task *models.ExerciseTask, submission *models.ExerciseTaskSubmission) (*models.ExerciseTaskGradingResult, error) {
	body := models.GradingRequest{
		ExerciseSpec:   json.RawMessage(task.PrivateSpec),
		SubmissionData: json.RawMessage(submission.DataJSON),
	}

	var result models.ExerciseTaskGradingResult
	if err := c.post(ctx, descriptor, descriptor.Info.GradeEndpointPath, endpointGrade, body, &result); err != nil {
		return nil, err
	}
	if !result.GradingProgress.Valid() {
		return nil, fmt.Errorf("%w: %s returned unknown grading progress %q", ErrServiceUnavailable, descriptor.Service.Slug, result.GradingProgress)
	}
	return &result, nil
}

// PublicSpec generates the student-facing spec from a private spec.
func (c *Client) PublicSpec(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, privateSpec json.RawMessage) (json.RawMessage, error) {
	return c.fetchSpec(ctx, descriptor, descriptor.Info.PublicSpecEndpointPath, endpointPublicSpec, privateSpec)
}

// ModelSolution generates the model solution from a private spec.
func (c *Client) ModelSolution(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, privateSpec json.RawMessage) (json.RawMessage, error) {
	return c.fetchSpec(ctx, descriptor, descriptor.Info.ModelSolutionSpecEndpointPath, endpointModelSolution, privateSpec)
}

func (c *Client) fetchSpec(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, path, endpoint string, privateSpec json.RawMessage) (json.RawMessage, error) {
	body := specRequest{
		RequestID:   uuid.New(),
		PrivateSpec: privateSpec,
	}
	var spec json.RawMessage
	if err := c.post(ctx, descriptor, path, endpoint, body, &spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func (c *Client) post(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, path, endpoint string, body, dest interface{}) (err error) {
	slug := descriptor.Service.Slug
	started := time.Now()
	defer func() { metrics.ObserveGrader(slug, endpoint, started, err) }()

	target, err := EndpointURL(descriptor.Service.BaseURL(), path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if err := c.limiter(slug).Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrServiceUnavailable, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrServiceUnavailable, slug, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.ErrorContext(ctx, "Exercise service returned an unsuccessful status code",
			"service", slug,
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", string(text))
		return fmt.Errorf("%w: %s %s returned status %d", ErrServiceUnavailable, slug, endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: failed to decode %s response from %s: %v", ErrServiceUnavailable, endpoint, slug, err)
	}
	return nil
}

func (c *Client) limiter(slug string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[slug]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[slug] = l
	}
	return l
}

// EndpointURL replaces the path of the service base url with an endpoint path.
// Endpoint paths are absolute, so any path on the base url is dropped.
func EndpointURL(baseURL, endpointPath string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid exercise service url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid exercise service url %q", baseURL)
	}
	u.Path = endpointPath
	u.RawPath = ""
	u.RawQuery = ""
	return u.String(), nil
}
