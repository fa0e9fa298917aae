package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldwatch/internal/types"

	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker/v2"
)

// ObservationClientConfig holds the configuration for creating an
// ObservationHTTPClient.
type ObservationClientConfig struct {
	BaseURL string
	APIKey  string

	// MaxRetries caps retry attempts on transient provider failures.
	// Zero disables retries; a negative value selects the default policy.
	MaxRetries int

	Logger *slog.Logger
}

// observationResponse is the payload returned by the provider's current
// conditions endpoint. Readings are keyed by the provider's own metric
// vocabulary and translated through the metric catalog.
type observationResponse struct {
	ObservedAt time.Time          `json:"observed_at"`
	Readings   map[string]float64 `json:"readings"`
}

// ObservationHTTPClient fetches current conditions from the observation
// provider through BaseClient. This routes all requests through the engine's
// resilience infrastructure (circuit breaker, retries, error mapping) and
// makes testing with httptest straightforward.
type ObservationHTTPClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger

	// decoderPool provides reusable zstd decoders for compressed responses.
	decoderPool sync.Pool
}

// NewObservationClient creates a new ObservationHTTPClient. The httpClient
// timeout should be left unset; callers bound each fetch with a context
// deadline instead.
func NewObservationClient(
	httpClient *http.Client,
	cfg ObservationClientConfig,
	opts ...BaseClientOption,
) *ObservationHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retry := DefaultRetryPolicy()
	if cfg.MaxRetries >= 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	base := NewBaseClient(
		httpClient,
		"observation-provider",
		retry,
		"Fieldwatch/1.0",
		opts...,
	)

	return newObservationClient(base, cfg, logger)
}

// NewObservationClientWithBase creates an ObservationHTTPClient with a
// pre-configured BaseClient. This is useful for testing when you want to
// control the BaseClient configuration (e.g., disable retries).
func NewObservationClientWithBase(
	base *BaseClient,
	cfg ObservationClientConfig,
) *ObservationHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return newObservationClient(base, cfg, logger)
}

func newObservationClient(
	base *BaseClient,
	cfg ObservationClientConfig,
	logger *slog.Logger,
) *ObservationHTTPClient {
	return &ObservationHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
		decoderPool: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					// This should never fail with nil input and default options.
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}
}

// BreakerState reports the state of the underlying circuit breaker. Exposed
// for the ops health surface.
func (c *ObservationHTTPClient) BreakerState() gobreaker.State {
	return c.base.BreakerState()
}

// Current fetches the latest observed conditions for the given coordinates.
// It sends GET to /v1/observations/current and translates the provider's
// reading keys into engine metric kinds. Readings with unrecognized keys are
// dropped; a payload with no recognizable readings at all is a bad payload.
func (c *ObservationHTTPClient) Current(ctx context.Context, lat, lon float64) (*types.Observation, error) {
	url := fmt.Sprintf("%s/v1/observations/current?lat=%.4f&lon=%.4f", c.baseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create observation request",
			err,
		)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	c.logger.DebugContext(ctx, "fetching current observation",
		"lat", lat,
		"lon", lon,
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Handle non-2xx responses that made it past the BaseClient retry logic.
	// BaseClient returns 4xx responses (other than 429) as-is without error.
	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(ctx, resp)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}

	var payload observationResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamBadPayload,
			"failed to decode observation response",
			err,
		)
	}

	if payload.ObservedAt.IsZero() {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamBadPayload,
			"observation response is missing observed_at",
			nil,
		)
	}

	obs := &types.Observation{
		Metrics:    make(map[types.MetricKind]float64, len(payload.Readings)),
		ObservedAt: payload.ObservedAt.UTC(),
	}
	for key, value := range payload.Readings {
		kind, ok := types.KindForProviderKey(key)
		if !ok {
			c.logger.DebugContext(ctx, "dropping unrecognized provider reading",
				"key", key,
			)
			continue
		}
		obs.Metrics[kind] = value
	}

	if len(obs.Metrics) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamBadPayload,
			"observation response contained no recognizable readings",
			nil,
		)
	}

	c.logger.DebugContext(ctx, "observation fetched",
		"lat", lat,
		"lon", lon,
		"readings", len(obs.Metrics),
		"observed_at", obs.ObservedAt.Format(time.RFC3339),
	)

	return obs, nil
}

// readBody reads the response body, transparently decompressing zstd-encoded
// payloads using pooled decoders.
func (c *ObservationHTTPClient) readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamBadPayload,
			"failed to read observation response body",
			err,
		)
	}

	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "zstd") {
		return raw, nil
	}

	decoder := c.decoderPool.Get().(*zstd.Decoder)
	defer c.decoderPool.Put(decoder)

	decoded, err := decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamBadPayload,
			"failed to decompress observation response",
			err,
		)
	}
	return decoded, nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *ObservationHTTPClient) handleErrorResponse(ctx context.Context, resp *http.Response) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.WarnContext(ctx, "observation provider error",
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The provider has no data for these coordinates. Callers treat this
		// the same as a cache MISS.
		return types.NewAppError(
			types.ErrCodeDataObservationMiss,
			"provider has no current observation for these coordinates",
			fmt.Errorf("provider returned 404: %s", bodyStr),
		)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("provider authentication failed (%d)", resp.StatusCode),
			fmt.Errorf("provider returned %d: %s", resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamBadPayload,
			fmt.Sprintf("provider rejected observation request (%d)", resp.StatusCode),
			fmt.Errorf("provider returned %d: %s", resp.StatusCode, bodyStr),
		)
	}
}
