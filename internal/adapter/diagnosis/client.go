// Package diagnosis is the HTTP adapter for a remote diagnosis service.
package diagnosis

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

	"github.com/couchcryptid/station-qc/internal/diagnostics"
	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/observability"
	"github.com/sony/gobreaker/v2"
)

const diagnosePath = "/v1/diagnose"

// Client implements diagnostics.Diagnoser against a JSON HTTP endpoint.
// Requests go through a circuit breaker; while it is open, calls fail at
// once with diagnostics.ErrBackendUnavailable.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[domain.DiagnosisResult]
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a remote diagnosis client.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		breaker: newBreaker("diagnosis"),
		metrics: metrics,
		logger:  logger,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[domain.DiagnosisResult] {
	return gobreaker.NewCircuitBreaker[domain.DiagnosisResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a backend failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Diagnose posts the request and decodes the remote classification.
func (c *Client) Diagnose(ctx context.Context, req diagnostics.Request) (domain.DiagnosisResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.DiagnosisResult{}, fmt.Errorf("encode diagnosis request: %w", err)
	}

	res, err := c.breaker.Execute(func() (domain.DiagnosisResult, error) {
		return c.doRequest(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.DiagnosisResult{}, fmt.Errorf("%w: %w", diagnostics.ErrBackendUnavailable, err)
	}
	if err != nil {
		return domain.DiagnosisResult{}, err
	}
	res.Backend = domain.BackendRemote
	return res, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) (domain.DiagnosisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+diagnosePath, bytes.NewReader(body))
	if err != nil {
		return domain.DiagnosisResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.DiagnosisBackendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.DiagnosisResult{}, fmt.Errorf("diagnosis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.DiagnosisResult{}, fmt.Errorf("%w: status %d: %s", diagnostics.ErrBackendUnavailable, resp.StatusCode, msg)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.DiagnosisResult{}, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("remote diagnosis",
		"classification", out.Classification,
		"confidence", out.Confidence,
	)
	return domain.DiagnosisResult{
		Classification: domain.Classification(out.Classification),
		Confidence:     out.Confidence,
		Rationale:      out.Rationale,
	}, nil
}

// Remote API response type.

type response struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale"`
}
