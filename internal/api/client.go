package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"email-automation/internal/database"
	"email-automation/internal/gmail"
	"email-automation/internal/jobs"
	"email-automation/internal/pipeline"
	"email-automation/internal/rules"
)

// Client handles HTTP requests to the email automation API
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     *ClientConfig
}

// ClientConfig configures the API client behavior
type ClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	BackoffFactor float64
	UserAgent     string
}

// DefaultClientConfig returns a config with sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryCount:    3,
		RetryDelay:    1 * time.Second,
		BackoffFactor: 2.0,
		UserAgent:     "email-automation/1.0",
	}
}

// RunRequest is the payload for submitting an automation run
type RunRequest struct {
	RuleIDs            []string `json:"rule_ids,omitempty"`
	UserQuery          string   `json:"user_query,omitempty"`
	DryRun             bool     `json:"dry_run"`
	ScanLimit          int      `json:"scan_limit,omitempty"`
	IncludeDetailedIDs bool     `json:"include_detailed_ids,omitempty"`
	Source             string   `json:"source,omitempty"`
}

// HealthStatus is the decoded body of GET /api/health
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Rules    string `json:"rules"`
	Message  string `json:"message,omitempty"`
}

// ErrorResponse represents an API error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError represents an error returned by the API
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is an API 404
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == http.StatusNotFound
}

// IsConflict reports whether err is an API 409
func IsConflict(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == http.StatusConflict
}

// RetryableError represents an error that should be retried
type RetryableError struct {
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *RetryableError) Error() string {
	return e.Message
}

// NewClient creates a new API client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %s", config.BaseURL)
	}
	if config.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if config.RetryCount < 0 {
		return nil, fmt.Errorf("retry count cannot be negative")
	}

	// Fill in defaults for optional fields
	if config.RetryDelay == 0 {
		config.RetryDelay = 1 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}
	if config.UserAgent == "" {
		config.UserAgent = "email-automation/1.0"
	}

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}, nil
}

// doRequest executes a single HTTP request and returns the response body.
// Server errors (5xx) come back as *RetryableError so callers can retry.
func (c *Client) doRequest(method, path string, body interface{}) ([]byte, error) {
	reqURL := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RetryableError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 400 {
		return respBody, nil
	}

	message := resp.Status
	var errorResp ErrorResponse
	if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
		message = errorResp.Error
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return nil, &RetryableError{
			Message:    message,
			StatusCode: resp.StatusCode,
			Retryable:  true,
		}
	}

	return nil, &APIError{Code: resp.StatusCode, Message: message}
}

// do executes a request with retry for idempotent methods, decoding the
// response into out when out is non-nil.
func (c *Client) do(method, path string, body, out interface{}) error {
	attempts := 1
	if isIdempotent(method) {
		attempts = c.config.RetryCount + 1
	}

	var respBody []byte
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		respBody, lastErr = c.doRequest(method, path, body)
		if lastErr == nil {
			break
		}
		if !c.isRetryableError(lastErr) {
			return lastErr
		}
		if attempt < attempts-1 {
			time.Sleep(c.calculateBackoffDelay(attempt))
		}
	}
	if lastErr != nil {
		return lastErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead:
		return true
	}
	return false
}

// isRetryableError determines if an error should trigger a retry
func (c *Client) isRetryableError(err error) bool {
	if retryableErr, ok := err.(*RetryableError); ok {
		return retryableErr.Retryable
	}
	return false
}

// calculateBackoffDelay calculates the delay for exponential backoff
func (c *Client) calculateBackoffDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.config.BackoffFactor
	}

	delay := time.Duration(float64(c.config.RetryDelay) * multiplier)

	// Cap the maximum delay at 30 seconds
	maxDelay := 30 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// HealthCheck verifies the API is reachable and healthy
func (c *Client) HealthCheck() error {
	return c.do("GET", "/api/health", nil, nil)
}

// Health returns the detailed health report
func (c *Client) Health() (*HealthStatus, error) {
	var status HealthStatus
	if err := c.do("GET", "/api/health", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetRules returns all rules
func (c *Client) GetRules() ([]rules.Rule, error) {
	var list []rules.Rule
	if err := c.do("GET", "/api/rules", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetRule returns a rule by id or name
func (c *Client) GetRule(idOrName string) (*rules.Rule, error) {
	var rule rules.Rule
	if err := c.do("GET", "/api/rules/"+url.PathEscape(idOrName), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule creates a new rule
func (c *Client) CreateRule(rule *rules.Rule) (*rules.Rule, error) {
	var created rules.Rule
	if err := c.do("POST", "/api/rules", rule, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateRule replaces a rule's definition
func (c *Client) UpdateRule(id string, rule *rules.Rule) (*rules.Rule, error) {
	var updated rules.Rule
	if err := c.do("PUT", "/api/rules/"+url.PathEscape(id), rule, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRule deletes a rule by id or name
func (c *Client) DeleteRule(idOrName string) error {
	return c.do("DELETE", "/api/rules/"+url.PathEscape(idOrName), nil, nil)
}

// EnableRule marks a rule enabled
func (c *Client) EnableRule(idOrName string) (*rules.Rule, error) {
	var rule rules.Rule
	if err := c.do("POST", "/api/rules/"+url.PathEscape(idOrName)+"/enable", nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DisableRule marks a rule disabled
func (c *Client) DisableRule(idOrName string) (*rules.Rule, error) {
	var rule rules.Rule
	if err := c.do("POST", "/api/rules/"+url.PathEscape(idOrName)+"/disable", nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// SubmitRun submits an automation run and returns the queued job
func (c *Client) SubmitRun(req *RunRequest) (*jobs.Snapshot, error) {
	var snap jobs.Snapshot
	if err := c.do("POST", "/api/jobs", req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetJobs returns jobs known to the server. With all=false only active
// jobs are returned.
func (c *Client) GetJobs(all bool) ([]jobs.Snapshot, error) {
	path := "/api/jobs"
	if all {
		path += "?all=true"
	}
	var list []jobs.Snapshot
	if err := c.do("GET", path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetJob returns a job by task id
func (c *Client) GetJob(id string) (*jobs.Snapshot, error) {
	var snap jobs.Snapshot
	if err := c.do("GET", "/api/jobs/"+url.PathEscape(id), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetJobResult returns the run summary of a completed job. The server
// responds 409 while the job is still pending or running.
func (c *Client) GetJobResult(id string) (*pipeline.RunSummary, error) {
	var summary pipeline.RunSummary
	if err := c.do("GET", "/api/jobs/"+url.PathEscape(id)+"/result", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// CancelJob requests cooperative cancellation of a job
func (c *Client) CancelJob(id string) (*jobs.Snapshot, error) {
	var snap jobs.Snapshot
	if err := c.do("POST", "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetRuns returns recorded run history, newest first. A non-positive
// limit uses the server default.
func (c *Client) GetRuns(limit int) ([]database.Run, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list []database.Run
	if err := c.do("GET", path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetRun returns a recorded run by numeric id
func (c *Client) GetRun(id int64) (*database.Run, error) {
	var run database.Run
	if err := c.do("GET", "/api/runs/"+strconv.FormatInt(id, 10), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRunStats returns aggregate counters over the recorded run history
func (c *Client) GetRunStats() (*database.RunStats, error) {
	var stats database.RunStats
	if err := c.do("GET", "/api/runs/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetLabels returns the mailbox's labels
func (c *Client) GetLabels() ([]gmail.Label, error) {
	var list []gmail.Label
	if err := c.do("GET", "/api/labels", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetBaseURL returns the configured base URL
func (c *Client) GetBaseURL() string {
	return c.baseURL
}
