package diagnosis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/station-qc/internal/diagnostics"
	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		breaker:    newBreaker("test"),
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testRequest() diagnostics.Request {
	ts := time.Date(2025, 12, 1, 14, 0, 0, 0, time.UTC)
	return diagnostics.Request{
		Summary: domain.NewAnomalySummary("S1", ts, "temperature", []domain.QcVerdict{
			domain.Fail(domain.Temperature, "spatial_consistency", domain.SeverityWarn, "deviation"),
		}),
		Metadata: "Heavy rain advisory",
	}
}

func TestClient_Diagnose_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, diagnosePath, r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		var req diagnostics.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "S1", req.Summary.StationID)
		assert.Equal(t, "Heavy rain advisory", req.Metadata)

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{
			Classification: "weather_extreme",
			Confidence:     0.85,
			Rationale:      "Convective line over the network.",
		}))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).Diagnose(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ClassWeatherExtreme, got.Classification)
	assert.InDelta(t, 0.85, got.Confidence, 1e-9)
	assert.Equal(t, domain.BackendRemote, got.Backend)
}

func TestClient_Diagnose_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Diagnose(context.Background(), testRequest())
	require.ErrorIs(t, err, diagnostics.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_Diagnose_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Diagnose(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_Diagnose_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for range 6 {
		_, _ = c.Diagnose(context.Background(), testRequest())
	}
	before := calls.Load()

	_, err := c.Diagnose(context.Background(), testRequest())
	require.ErrorIs(t, err, diagnostics.ErrBackendUnavailable)
	assert.Equal(t, before, calls.Load(), "open breaker must not reach the server")
}

func TestClient_Diagnose_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testClient(srv.URL).Diagnose(ctx, testRequest())
	require.Error(t, err)
}
