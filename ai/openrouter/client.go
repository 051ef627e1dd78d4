// Package openrouter is a minimal chat-completions client for openrouter.ai
// with retries and per-call usage tracking.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/kwpulse/ai/tracker"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/internal/httpclient"
)

const (
	// DefaultModel matches the default in am/defaults.go
	DefaultModel   = "openai/gpt-4o-mini"
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	providerName = "openrouter"
	maxRetries   = 3
)

// Client is an OpenRouter chat-completions client.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *httpclient.SaferClient
	config       Config
	usageTracker *tracker.UsageTracker
	logger       *zap.SugaredLogger
	retryDelay   time.Duration
}

// Config holds client configuration.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64 // nil = 0.7
	MaxTokens   *int     // nil = 400
	Timeout     time.Duration
	Logger      *zap.SugaredLogger
	// Tracker records every call. nil disables tracking.
	Tracker *tracker.UsageTracker
	// OperationType labels tracked calls and the X-Title header
	OperationType string
}

// NewClient creates a client with SSRF protection and defaults applied.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Temperature == nil {
		t := 0.7
		config.Temperature = &t
	}
	if config.MaxTokens == nil {
		n := 400
		config.MaxTokens = &n
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.OperationType == "" {
		config.OperationType = "keyword-suggest"
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		httpClient:   httpclient.NewSaferClient(config.Timeout),
		config:       config,
		usageTracker: config.Tracker,
		logger:       logger,
		retryDelay:   time.Second,
	}
}

// ChatCompletionRequest is the wire request body.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a high-level request.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64
	MaxTokens    *int
	Model        *string
	// EntityType and EntityID describe what the call was about, for tracking
	EntityType string
	EntityID   string
}

// ChatResponse is the assistant reply.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// ChatCompletionResponse is the wire response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// statusError carries the HTTP status of a failed call so retries can key on it.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.code, e.body)
}

// CreateChatCompletion sends one request without retries.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "kwpulse/"+c.config.OperationType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithStack(&statusError{code: resp.StatusCode, body: string(respBody)})
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &chatResp, nil
}

// Chat sends a request with up to three attempts on network errors, 429 and 5xx.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrServiceUnavailable, "OpenRouter API key not configured"),
			"set openrouter.api_key or KWPULSE_OPENROUTER_API_KEY",
		)
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil {
		model = *req.Model
	}

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}
	wireReq := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	requestTime := time.Now()
	var resp *ChatCompletionResponse
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			c.logger.Debugw("Retrying OpenRouter request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				err = errors.Wrap(ctx.Err(), "retry aborted")
				c.track(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
				return nil, err
			case <-time.After(delay):
			}
		}

		resp, err = c.CreateChatCompletion(ctx, wireReq)
		if err == nil {
			break
		}

		c.logger.Warnw("OpenRouter API error",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"error", err,
			"model", model,
		)
		if !isRetryableError(err) {
			c.track(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
			return nil, errors.Wrap(err, "OpenRouter API error")
		}
	}

	if err != nil {
		c.track(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
		return nil, errors.Wrapf(err, "OpenRouter API error after %d attempts", maxRetries)
	}
	if len(resp.Choices) == 0 {
		err = errors.New("no response choices from OpenRouter")
		c.track(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
		return nil, err
	}

	c.track(ctx, req, requestTime, model, temperature, maxTokens, &resp.Usage, nil)

	return &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   model,
		Usage:   resp.Usage,
	}, nil
}

// track records the call outcome. Tracking failures are logged, never returned.
func (c *Client) track(ctx context.Context, req ChatRequest, requestTime time.Time, model string, temperature float64, maxTokens int, usage *Usage, callErr error) {
	if c.usageTracker == nil {
		return
	}

	responseTime := time.Now()
	record := &tracker.ModelUsage{
		OperationType:     c.config.OperationType,
		EntityType:        req.EntityType,
		EntityID:          req.EntityID,
		ModelName:         model,
		ModelProvider:     providerName,
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           callErr == nil,
	}
	if usage != nil {
		tokens := usage.TotalTokens
		cost := CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)
		record.TokensUsed = &tokens
		record.Cost = &cost
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}

	// Record even when the caller's context was cancelled mid-call
	trackCtx := context.WithoutCancel(ctx)
	if err := c.usageTracker.TrackUsage(trackCtx, record); err != nil {
		c.logger.Warnw("Failed to track usage", "error", err, "model", model)
	}
}

// isRetryableError reports whether err is transient: network failures,
// rate limiting or a server-side error.
func isRetryableError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset by peer",
		"connection refused",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient replaces the HTTP client. Tests only; it disables SSRF blocking.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}
