package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"rxcred/internal/platform/metrics"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/circuit"
)

const (
	defaultHTTPTimeout   = 5 * time.Second
	defaultProbeInterval = 10 * time.Second
)

// HTTPClient consults a remote trust registry over HTTP. Consecutive
// failures open a circuit breaker; while the circuit is open, lookups fail
// fast with a registry-unavailable error instead of hammering a dead
// registry. The caller decides what an unavailable registry means, and the
// verification pipeline treats it as not trusted.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// While the circuit is open, one request per probe interval is let
	// through so the breaker can observe recovery and close again.
	probeInterval time.Duration
	probeMu       sync.Mutex
	lastProbe     time.Time
}

// HTTPOption configures the HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.httpClient.Timeout = d
	}
}

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) HTTPOption {
	return func(h *HTTPClient) {
		h.metrics = m
	}
}

// WithBreaker overrides the default circuit breaker, mainly for tests that
// need low thresholds.
func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(h *HTTPClient) {
		h.breaker = b
	}
}

// WithProbeInterval sets how often an open circuit lets a request through.
func WithProbeInterval(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.probeInterval = d
		}
	}
}

// NewHTTPClient creates a trust registry client for the given base URL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		breaker:       circuit.New("trust_registry"),
		probeInterval: defaultProbeInterval,
		lastProbe:     time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type issuerStatusResponse struct {
	Trusted bool `json:"trusted"`
}

// IsTrusted asks the registry about one issuer DID. A 404 is a definitive
// "not trusted"; transport failures and 5xx responses surface as
// registry-unavailable errors so the caller fails closed.
func (h *HTTPClient) IsTrusted(ctx context.Context, issuer id.DID) (bool, error) {
	if h.breaker.IsOpen() && !h.allowProbe() {
		return false, dErrors.New(dErrors.CodeRegistryUnavailable, "trust registry circuit open")
	}

	endpoint := fmt.Sprintf("%s/v1/issuers/%s", h.baseURL, url.PathEscape(issuer.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "build trust registry request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.recordFailure(ctx, err)
		return false, dErrors.Wrap(err, dErrors.CodeRegistryUnavailable, "trust registry unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		h.recordSuccess(ctx)
		return false, nil
	case resp.StatusCode >= 500:
		h.recordFailure(ctx, fmt.Errorf("trust registry returned %d", resp.StatusCode))
		return false, dErrors.New(dErrors.CodeRegistryUnavailable, fmt.Sprintf("trust registry returned %d", resp.StatusCode))
	default:
		// 4xx other than 404 means we sent something the registry rejects.
		// Not a registry outage, so the breaker stays untouched.
		return false, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("trust registry returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		h.recordFailure(ctx, err)
		return false, dErrors.Wrap(err, dErrors.CodeRegistryUnavailable, "read trust registry response")
	}
	var status issuerStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		h.recordFailure(ctx, err)
		return false, dErrors.Wrap(err, dErrors.CodeRegistryUnavailable, "decode trust registry response")
	}

	h.recordSuccess(ctx)
	return status.Trusted, nil
}

func (h *HTTPClient) allowProbe() bool {
	h.probeMu.Lock()
	defer h.probeMu.Unlock()

	if time.Since(h.lastProbe) < h.probeInterval {
		return false
	}
	h.lastProbe = time.Now()
	return true
}

func (h *HTTPClient) recordFailure(ctx context.Context, err error) {
	_, change := h.breaker.RecordFailure()
	if change.Opened {
		if h.logger != nil {
			h.logger.ErrorContext(ctx, "trust registry circuit opened",
				"circuit", h.breaker.Name(),
				"error", err,
			)
		}
		if h.metrics != nil {
			h.metrics.SetRegistryBreakerOpen(true)
		}
	}
}

func (h *HTTPClient) recordSuccess(ctx context.Context) {
	_, change := h.breaker.RecordSuccess()
	if change.Closed {
		if h.logger != nil {
			h.logger.InfoContext(ctx, "trust registry circuit closed",
				"circuit", h.breaker.Name(),
			)
		}
		if h.metrics != nil {
			h.metrics.SetRegistryBreakerOpen(false)
		}
	}
}
