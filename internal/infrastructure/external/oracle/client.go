// Package oracle implements the HTTP client for the attractiveness scoring
// service. Every call goes through a rate limiter, a retrier and a circuit
// breaker.
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/alem-hub/drop-matcher/internal/domain/shared"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/metrics"
	"github.com/alem-hub/drop-matcher/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the oracle client.
type Config struct {
	// BaseURL of the scoring service; the client posts to {BaseURL}/analyze.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RatePerSecond and Burst bound outgoing requests.
	RatePerSecond float64
	Burst         int

	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32

	// BreakerOpenTimeout is how long the breaker stays open.
	BreakerOpenTimeout time.Duration

	// Retrier overrides the default retry policy (tests).
	Retrier *retry.Retrier

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		Timeout:            30 * time.Second,
		RatePerSecond:      2,
		Burst:              2,
		BreakerFailures:    5,
		BreakerOpenTimeout: time.Minute,
	}
}

// BreakerName labels the breaker in logs and metrics.
const BreakerName = "oracle"

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client scores profile photos.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[float64]
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewClient creates a new oracle client.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retry.OracleRetrier()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	logger := cfg.Logger.With(slog.String("component", "oracle"))

	settings := gobreaker.Settings{
		Name:    BreakerName,
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Rejected input says nothing about the oracle's health.
		IsSuccessful: func(err error) bool {
			return err == nil || retry.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.SetBreakerState(name, int(to))
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker:    gobreaker.NewCircuitBreaker[float64](settings),
		retrier:    cfg.Retrier,
		logger:     logger,
	}
}

// BreakerState returns the current breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Check reports an error while the breaker is open (health checks).
func (c *Client) Check(context.Context) error {
	if c.BreakerState() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit breaker open", shared.ErrOracleUnavailable)
	}
	return nil
}

// Score returns the attractiveness score in [0,100] for an image URL.
func (c *Client) Score(ctx context.Context, imageURL string) (float64, error) {
	start := time.Now()

	score, err := retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (float64, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		s, err := c.breaker.Execute(func() (float64, error) {
			return c.analyze(ctx, imageURL)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, retry.Permanent(fmt.Errorf("%w: %v", shared.ErrOracleUnavailable, err))
		}
		return s, err
	})

	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrOracleInvalidResponse):
		result = "rejected"
	default:
		result = "error"
	}
	metrics.RecordOracleRequest(result, time.Since(start))

	if err != nil {
		c.logger.Warn("oracle scoring failed",
			slog.String("image_url", imageURL),
			slog.Any("error", err),
		)
		return 0, err
	}

	return score, nil
}

type analyzeRequest struct {
	ImageURL string `json:"image_url"`
}

// analyzeResponse accepts both {"score": n} and gradio-style {"data": ["72.5"]}.
type analyzeResponse struct {
	Score *float64          `json:"score"`
	Data  []json.RawMessage `json:"data"`
}

func (c *Client) analyze(ctx context.Context, imageURL string) (float64, error) {
	body, err := json.Marshal(analyzeRequest{ImageURL: imageURL})
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("marshal body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, retry.Permanent(ctx.Err())
		}
		return 0, retry.Retryable(fmt.Errorf("%w: %v", shared.ErrOracleUnavailable, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, retry.Retryable(fmt.Errorf("%w: read response: %v", shared.ErrOracleUnavailable, err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, retry.Retryable(fmt.Errorf("%w: status %d", shared.ErrOracleRateLimited, resp.StatusCode))
	case resp.StatusCode >= 500:
		return 0, retry.Retryable(fmt.Errorf("%w: status %d", shared.ErrOracleUnavailable, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return 0, retry.Permanent(fmt.Errorf("%w: status %d: %s",
			shared.ErrOracleInvalidResponse, resp.StatusCode, truncate(respBody, 200)))
	}

	score, err := ParseScore(respBody)
	if err != nil {
		return 0, retry.Permanent(err)
	}
	return score, nil
}

// ParseScore extracts a score from an oracle response body.
// A value that cannot be parsed is an error, never a silent zero.
func ParseScore(body []byte) (float64, error) {
	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrOracleInvalidResponse, err)
	}

	var score float64
	switch {
	case resp.Score != nil:
		score = *resp.Score
	case len(resp.Data) > 0:
		v, err := parseDataValue(resp.Data[0])
		if err != nil {
			return 0, fmt.Errorf("%w: data[0]: %v", shared.ErrOracleInvalidResponse, err)
		}
		score = v
	default:
		return 0, fmt.Errorf("%w: no score in response", shared.ErrOracleInvalidResponse)
	}

	if math.IsNaN(score) || score < 0 || score > 100 {
		return 0, fmt.Errorf("%w: score %v outside [0,100]", shared.ErrOracleInvalidResponse, score)
	}
	return score, nil
}

// parseDataValue accepts a JSON number or a numeric string.
func parseDataValue(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
