// Package llm talks to an OpenAI-compatible chat completions endpoint and
// implements the LLM extractor and categorizer on top of it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/smart-finance-ingest/pkg/metrics"
)

var ErrNotConfigured = errors.New("llm api key not configured")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Config configures a Client.
type Config struct {
	APIKey     string
	APIBase    string
	Model      string
	Timeout    time.Duration
	RatePerSec float64
	Retry      RetryPolicy
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is a rate-limited chat completions client with retries.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: m,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Chat sends messages and returns the first choice's content, trimmed.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	ctx, span := otel.Tracer("llm").Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.cfg.Model))

	body, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: messages, Temperature: temperature})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	var content string
	err = c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		content = out
		return nil
	}, func(attempt int, err error) {
		c.metrics.LLMRequest(metrics.OutcomeRetry)
		c.logger.Warn("llm request failed, retrying",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	})
	if err != nil {
		c.metrics.LLMRequest(metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	c.metrics.LLMRequest(metrics.OutcomeSuccess)
	return content, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ConnError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &ConnError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm response has no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("llm response is empty")
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
