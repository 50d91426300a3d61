package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cloudforge/internal/cache"
)

const responseBodyLimit = 1 << 20

// ErrNotFound marks a schema the service does not know; the gateway degrades
// to the bundled fallback the same way it does on exhausted retries.
var ErrNotFound = errors.New("schema not found")

type timingConfig struct {
	timeout        time.Duration
	maxAttempts    int
	backoffInitial time.Duration
	backoffFactor  float64
	rateInterval   time.Duration
	rateBurst      int
}

var defaultTiming = timingConfig{
	timeout:        10 * time.Second,
	maxAttempts:    3,
	backoffInitial: 200 * time.Millisecond,
	backoffFactor:  2,
	rateInterval:   100 * time.Millisecond,
	rateBurst:      4,
}

// Gateway fetches resource schemas and best-practice hints from the external
// schema service, through the schema cache, with bounded retries. A final
// failure never fails the caller: it yields a degraded bundled schema.
type Gateway struct {
	logger    zerolog.Logger
	baseURL   string
	client    *retryablehttp.Client
	limiter   *rate.Limiter
	cache     *cache.Cache[Schema]
	fallbacks map[string]Schema
	timing    timingConfig
}

// GatewayOption customizes gateway behavior.
type GatewayOption func(*Gateway)

// WithTimeout sets the per-call timeout. It cancels only the in-flight
// network call; the caller still receives a degraded schema.
func WithTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.timing.timeout = timeout
	}
}

// WithMaxAttempts bounds retries per fetch.
func WithMaxAttempts(attempts int) GatewayOption {
	return func(g *Gateway) {
		g.timing.maxAttempts = attempts
	}
}

// WithBackoffInitial sets the first retry delay.
func WithBackoffInitial(initial time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.timing.backoffInitial = initial
	}
}

// NewGateway constructs a Gateway over the given schema cache.
func NewGateway(logger zerolog.Logger, baseURL string, schemaCache *cache.Cache[Schema], opts ...GatewayOption) (*Gateway, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("schema service url must not be empty")
	}
	if schemaCache == nil {
		return nil, errors.New("schema cache is required")
	}

	fallbacks, err := LoadFallbacks()
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
		cache:     schemaCache,
		fallbacks: fallbacks,
		timing:    defaultTiming,
	}
	for _, opt := range opts {
		opt(g)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: g.timing.timeout}
	g.client = client
	g.limiter = rate.NewLimiter(rate.Every(g.timing.rateInterval), g.timing.rateBurst)

	return g, nil
}

// GetSchema returns the schema for (resourceType, version). Cache misses go
// to the schema service under the cache's single-flight guarantee; on
// exhausted retries, timeout, or not-found the bundled fallback is returned
// marked degraded. Only context cancellation surfaces as an error.
func (g *Gateway) GetSchema(ctx context.Context, resourceType, version string) (Schema, error) {
	key := resourceType + "@" + version

	return g.cache.GetOrCompute(ctx, key, func(ctx context.Context) (Schema, error) {
		fetched, err := g.fetchWithRetry(ctx, resourceType, version)
		if err == nil {
			return fetched, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Schema{}, ctxErr
		}

		g.logger.Warn().
			Err(err).
			Str("resource_type", resourceType).
			Str("version", version).
			Msg("schema service unavailable, using bundled fallback")
		return Fallback(g.fallbacks, resourceType, version), nil
	})
}

// GetBestPractices returns best-practice hints for a resource type, sourced
// from the same cached schema document.
func (g *Gateway) GetBestPractices(ctx context.Context, resourceType string) ([]string, error) {
	s, err := g.GetSchema(ctx, resourceType, "")
	if err != nil {
		return nil, err
	}
	return s.BestPractices, nil
}

func (g *Gateway) fetchWithRetry(ctx context.Context, resourceType, version string) (Schema, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = g.timing.backoffInitial
	backoffCfg.Multiplier = g.timing.backoffFactor
	backoffCfg.RandomizationFactor = 0
	backoffCfg.Reset()

	var lastErr error
	for attempt := 1; attempt <= g.timing.maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return Schema{}, err
		}

		fetched, err := g.fetchOnce(ctx, resourceType, version)
		if err == nil {
			return fetched, nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return Schema{}, err
		}
		lastErr = err

		if attempt == g.timing.maxAttempts {
			break
		}
		wait := backoffCfg.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		if !sleepWithContext(ctx, wait) {
			return Schema{}, ctx.Err()
		}
	}

	return Schema{}, fmt.Errorf("schema fetch failed after %d attempts: %w", g.timing.maxAttempts, lastErr)
}

func (g *Gateway) fetchOnce(ctx context.Context, resourceType, version string) (Schema, error) {
	// Per-call timeout: cancels this request only, never the run.
	reqCtx, cancel := context.WithTimeout(ctx, g.timing.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/schemas/%s", g.baseURL, url.PathEscape(resourceType))
	if version != "" {
		endpoint += "?version=" + url.QueryEscape(version)
	}

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Schema{}, fmt.Errorf("build schema request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Schema{}, fmt.Errorf("schema request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Schema{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Schema{}, fmt.Errorf("schema service returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return Schema{}, fmt.Errorf("read schema response: %w", err)
	}

	var fetched Schema
	if err := json.Unmarshal(body, &fetched); err != nil {
		return Schema{}, fmt.Errorf("decode schema response: %w", err)
	}
	if fetched.ResourceType == "" {
		fetched.ResourceType = resourceType
	}
	if fetched.Version == "" {
		fetched.Version = version
	}
	if fetched.Fields == nil {
		fetched.Fields = map[string]Field{}
	}

	return fetched, nil
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
