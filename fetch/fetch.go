// Package fetch implements the Fetch Executor: issues the final HTTP
// request against the backend feed service, retrying against a fallback
// base URL on timeout or 5xx, and records which origin actually served
// each result. Health of the primary is probed and cached short-TTL via
// a circuit breaker, following the same closed/open/half-open state
// machine the teacher's llm/circuitbreaker package uses for upstream LLM
// calls.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/llm/circuitbreaker"
	"github.com/omniboxhq/omnibox/omnicache"
)

// Origin records which base URL actually served a FetchResult.
type Origin string

const (
	OriginPrimary  Origin = "primary"
	OriginFallback Origin = "fallback"
)

// Result is the Fetch Executor's output: the feed title, its records
// (heterogeneously shaped per route — normalization is the adapter
// layer's job, not this package's), and provenance/cache metadata.
type Result struct {
	Title   string           `json:"title"`
	Records []map[string]any `json:"records"`
	Origin  Origin           `json:"origin"`
	Cached  bool             `json:"cached"`
}

// Config configures primary/fallback base URLs and retry behavior.
type Config struct {
	PrimaryBase  string        `yaml:"primary_base" env:"PRIMARY_BASE"`
	FallbackBase string        `yaml:"fallback_base" env:"FALLBACK_BASE"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
}

// DefaultConfig mirrors the teacher's provider-timeout defaults scaled
// down for a feed-service hop that should fail fast.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		Timeout:      10 * time.Second,
		ProbeTimeout: 2 * time.Second,
	}
}

// Executor issues GET requests against the configured feed service.
type Executor struct {
	cfg     Config
	client  *http.Client
	breaker circuitbreaker.CircuitBreaker
	cache   *omnicache.PayloadCache
	logger  *zap.Logger
}

// New constructs an Executor.
func New(cfg Config, cache *omnicache.PayloadCache, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	breakerLogger := logger.With(zap.String("component", "fetch_breaker"))
	return &Executor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Threshold:    3,
			Timeout:      cfg.ProbeTimeout,
			ResetTimeout: 30 * time.Second,
		}, breakerLogger),
		cache:  cache,
		logger: logger.With(zap.String("component", "fetch_executor")),
	}
}

// Fetch issues a GET against primaryBase+path, failing over to
// fallbackBase on timeout or 5xx after MaxRetries. routeID and params
// are used only for payload cache keying — the actual request uses the
// already-filled path.
func (e *Executor) Fetch(ctx context.Context, routeID string, params map[string]string, path string) (Result, error) {
	if e.cache != nil {
		var cached Result
		if e.cache.Get(ctx, routeID, params, &cached) {
			cached.Cached = true
			return cached, nil
		}
	}

	if e.breaker.State() != circuitbreaker.StateOpen {
		result, err := e.fetchFrom(ctx, e.cfg.PrimaryBase, path, OriginPrimary)
		if err == nil {
			e.store(ctx, routeID, params, result)
			return result, nil
		}
		e.logger.Warn("primary fetch failed, falling back", zap.String("route_id", routeID), zap.Error(err))
		e.breaker.Call(ctx, func() error { return err })
	}

	if e.cfg.FallbackBase == "" {
		return Result{}, fmt.Errorf("primary fetch failed and no fallback configured")
	}

	result, err := e.fetchFrom(ctx, e.cfg.FallbackBase, path, OriginFallback)
	if err != nil {
		return Result{}, fmt.Errorf("fallback fetch failed: %w", err)
	}
	e.store(ctx, routeID, params, result)
	return result, nil
}

func (e *Executor) fetchFrom(ctx context.Context, base, path string, origin Origin) (Result, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return Result{}, fmt.Errorf("build request: %w", err)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("upstream %s returned %d", base, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return Result{}, fmt.Errorf("upstream %s returned %d: %s", base, resp.StatusCode, string(body))
		}

		return parseFeedBody(body, origin)
	}
	return Result{}, fmt.Errorf("all attempts against %s failed: %w", base, lastErr)
}

func (e *Executor) store(ctx context.Context, routeID string, params map[string]string, result Result) {
	if e.cache != nil {
		e.cache.Set(ctx, routeID, params, result)
	}
}

// ProbePrimary issues a short-timeout health check against the primary
// base. Called at startup and on failure; the circuit breaker caches the
// resulting state for ProbeTimeout-scale durations on its own.
func (e *Executor) ProbePrimary(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.cfg.PrimaryBase+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe primary: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("primary probe returned %d", resp.StatusCode)
	}
	return nil
}
