package upstream

import (
	"context"
	"log/slog"
	"time"

	"fieldwatch/internal/cache"
	"fieldwatch/internal/metrics"
	"fieldwatch/internal/types"
)

// ObservationSource fetches current conditions directly from the provider.
type ObservationSource interface {
	Current(ctx context.Context, lat, lon float64) (*types.Observation, error)
}

// CallLimiter enforces the local call quota on provider fetches.
type CallLimiter interface {
	TryAcquire() bool
}

// ObservationService resolves current conditions for coordinates, consulting
// the weather cache before spending provider quota. A fresh cache entry is
// returned as-is; on provider failure or quota exhaustion the service falls
// back to a stale entry inside the grace window. When neither is available
// the returned error carries a taxonomy code and the caller skips the alert
// for this cycle.
type ObservationService struct {
	source  ObservationSource
	weather *cache.WeatherCache
	limiter CallLimiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewObservationService creates an ObservationService. The timeout bounds a
// single provider fetch.
func NewObservationService(
	source ObservationSource,
	weather *cache.WeatherCache,
	limiter CallLimiter,
	timeout time.Duration,
	logger *slog.Logger,
) *ObservationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservationService{
		source:  source,
		weather: weather,
		limiter: limiter,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve returns the current observation for the given coordinates.
//
// Resolution order: fresh cache entry, then a provider fetch (subject to the
// local quota), then a stale cache entry within the grace window. Errors are
// always AppErrors; any error means the observation is unavailable this cycle.
func (s *ObservationService) Resolve(ctx context.Context, lat, lon float64) (*types.Observation, error) {
	if obs, ok := s.weather.Get(lat, lon); ok {
		metrics.WeatherCacheLookups.WithLabelValues("hit").Inc()
		return obs, nil
	}

	if !s.limiter.TryAcquire() {
		metrics.UpstreamRequests.WithLabelValues("throttled").Inc()
		if obs, ok := s.weather.GetStale(lat, lon); ok {
			metrics.WeatherCacheLookups.WithLabelValues("stale").Inc()
			s.logger.WarnContext(ctx, "observation quota exhausted; serving stale cache entry",
				"lat", lat,
				"lon", lon,
				"observed_at", obs.ObservedAt.Format(time.RFC3339),
			)
			return obs, nil
		}
		metrics.WeatherCacheLookups.WithLabelValues("miss").Inc()
		return nil, types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"local observation call quota exhausted",
			nil,
		)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	obs, err := s.source.Current(fetchCtx, lat, lon)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		if stale, ok := s.weather.GetStale(lat, lon); ok {
			metrics.WeatherCacheLookups.WithLabelValues("stale").Inc()
			s.logger.WarnContext(ctx, "observation fetch failed; serving stale cache entry",
				"lat", lat,
				"lon", lon,
				"error_code", string(types.CodeOf(err)),
				"error", err,
			)
			return stale, nil
		}
		metrics.WeatherCacheLookups.WithLabelValues("miss").Inc()
		return nil, err
	}

	metrics.UpstreamRequests.WithLabelValues("ok").Inc()
	metrics.WeatherCacheLookups.WithLabelValues("miss").Inc()
	s.weather.Put(lat, lon, obs)
	return obs, nil
}

// Compile-time interface compliance check.
var _ ObservationSource = (*ObservationHTTPClient)(nil)
