// Package gateway composes validation, caching, rate limiting,
// credential resolution, provider calls, cost estimation, and usage
// logging into the single entry point every LLM call passes through.
package gateway

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arclight-ai/arclight/pkg/cache"
	"github.com/arclight-ai/arclight/pkg/gwerr"
	"github.com/arclight-ai/arclight/pkg/models"
	"github.com/arclight-ai/arclight/pkg/pricing"
	"github.com/arclight-ai/arclight/pkg/provider"
	"github.com/arclight-ai/arclight/pkg/ratelimit"
	"github.com/arclight-ai/arclight/pkg/secrets"
	"github.com/arclight-ai/arclight/pkg/usage"
	"github.com/arclight-ai/arclight/pkg/validate"
)

// Options configures a Gateway. Nil collaborators disable the concern:
// a nil Cache disables caching, a nil Limiter disables rate limiting,
// a nil Recorder disables usage logging.
type Options struct {
	Cache    *cache.Store
	Limiter  *ratelimit.Limiter
	Resolver *secrets.Resolver
	Registry *provider.Registry
	Pricer   *pricing.Table
	Recorder usage.Recorder

	// UpstreamTimeout bounds the provider call; StoreTimeout bounds
	// best-effort bookkeeping writes.
	UpstreamTimeout time.Duration
	StoreTimeout    time.Duration
}

// Stats counts the gateway's best-effort failures. They never surface to
// callers, so they are observable here instead.
type Stats struct {
	RateLimitFailOpens int64             `json:"rate_limit_fail_opens"`
	RecordFailures     int64             `json:"record_failures"`
	CacheWriteFailures int64             `json:"cache_write_failures"`
	Cache              models.CacheStats `json:"cache"`
}

// Gateway is the orchestrator. One instance serves all in-flight
// requests; its collaborators are concurrency-safe.
type Gateway struct {
	cache    *cache.Store
	limiter  *ratelimit.Limiter
	resolver *secrets.Resolver
	registry *provider.Registry
	pricer   *pricing.Table
	recorder usage.Recorder

	upstreamTimeout time.Duration
	storeTimeout    time.Duration

	failOpens          atomic.Int64
	recordFailures     atomic.Int64
	cacheWriteFailures atomic.Int64
}

// New creates a Gateway with explicitly injected dependencies.
func New(opts Options) *Gateway {
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 60 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Gateway{
		cache:           opts.Cache,
		limiter:         opts.Limiter,
		resolver:        opts.Resolver,
		registry:        opts.Registry,
		pricer:          opts.Pricer,
		recorder:        opts.Recorder,
		upstreamTimeout: opts.UpstreamTimeout,
		storeTimeout:    opts.StoreTimeout,
	}
}

// Process handles one non-streaming request end to end: validate, cache
// check, rate limit, credential resolution, provider call, cache write.
func (g *Gateway) Process(ctx context.Context, req *models.ProxyRequest, userID string) (*models.ProxyResponse, error) {
	req, err := validate.Sanitize(req)
	if err != nil {
		return nil, err
	}
	req.UserID = userID

	requestID := uuid.NewString()
	start := time.Now()

	var fingerprint string
	if g.cache != nil && !req.Stream {
		fingerprint = cache.Fingerprint(req)
		if resp, ok := g.cache.Get(fingerprint); ok {
			g.recordAsync(req, resp, requestID, 0, time.Since(start), true)
			return &models.ProxyResponse{
				Data:      resp,
				Usage:     proxyUsage(resp, 0),
				Cached:    true,
				RequestID: requestID,
			}, nil
		}
	}

	if err := g.admit(ctx, req.Scope); err != nil {
		return nil, err
	}

	apiKey, err := g.resolver.Resolve(ctx, req.Provider, req.Scope)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.upstreamTimeout)
	defer cancel()
	resp, err := g.registry.Get(req.Provider).Complete(callCtx, req, apiKey)
	if err != nil {
		return nil, err
	}

	cost := g.estimate(resp)

	// The cache write is an in-memory insert and happens before the
	// response returns, so an identical request made immediately after
	// is served from cache. Only the usage insert stays off the path.
	if g.cache != nil && fingerprint != "" {
		if err := g.cache.Put(fingerprint, req, resp); err != nil {
			g.cacheWriteFailures.Add(1)
			log.Printf("cache write skipped for %s: %v", requestID, err)
		}
	}
	g.recordAsync(req, resp, requestID, cost, time.Since(start), false)

	return &models.ProxyResponse{
		Data:      resp,
		Usage:     proxyUsage(resp, cost),
		Cached:    false,
		RequestID: requestID,
	}, nil
}

// Stream handles one streaming request: the admission pipeline runs in
// full, the cache is bypassed, and the raw provider stream is returned.
// The caller owns the reader.
func (g *Gateway) Stream(ctx context.Context, req *models.ProxyRequest, userID string) (io.ReadCloser, string, error) {
	req, err := validate.Sanitize(req)
	if err != nil {
		return nil, "", err
	}
	req.UserID = userID
	req.Stream = true

	requestID := uuid.NewString()
	start := time.Now()

	if err := g.admit(ctx, req.Scope); err != nil {
		return nil, "", err
	}

	apiKey, err := g.resolver.Resolve(ctx, req.Provider, req.Scope)
	if err != nil {
		return nil, "", err
	}

	body, err := g.registry.Get(req.Provider).Stream(ctx, req, apiKey)
	if err != nil {
		return nil, "", err
	}

	// Token counts are unknown until the stream ends; the record keeps
	// the call in the audit trail with time-to-first-byte latency.
	g.recordAsync(req, nil, requestID, 0, time.Since(start), false)
	return body, requestID, nil
}

// Stats reports best-effort failure counters and cache metrics.
func (g *Gateway) Stats() Stats {
	s := Stats{
		RateLimitFailOpens: g.failOpens.Load(),
		RecordFailures:     g.recordFailures.Load(),
		CacheWriteFailures: g.cacheWriteFailures.Load(),
	}
	if g.cache != nil {
		s.Cache = g.cache.Stats()
	}
	return s
}

// RateLimitStatus reports window state for a scope without admitting.
func (g *Gateway) RateLimitStatus(ctx context.Context, scope string) (models.RateLimitResult, error) {
	if g.limiter == nil {
		return models.RateLimitResult{Allowed: true}, nil
	}
	return g.limiter.Peek(ctx, scope)
}

// admit runs the rate limit check. A quota deny aborts the request; a
// counter store failure does not (the limiter fails open and we count it).
func (g *Gateway) admit(ctx context.Context, scope string) error {
	if g.limiter == nil {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	result := g.limiter.Allow(checkCtx, scope)
	if result.FailedOpen {
		g.failOpens.Add(1)
	}
	if !result.Allowed {
		return gwerr.New(gwerr.KindRateLimited, nil)
	}
	return nil
}

func (g *Gateway) estimate(resp *models.LLMResponse) float64 {
	if resp.Usage == nil {
		return 0
	}
	return g.pricer.Estimate(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
}

func (g *Gateway) recordAsync(req *models.ProxyRequest, resp *models.LLMResponse, requestID string, cost float64, latency time.Duration, cacheHit bool) {
	if g.recorder == nil {
		return
	}
	go g.record(req, resp, requestID, cost, latency, cacheHit)
}

func (g *Gateway) record(req *models.ProxyRequest, resp *models.LLMResponse, requestID string, cost float64, latency time.Duration, cacheHit bool) {
	rec := models.UsageRecord{
		Scope:         req.Scope,
		UserID:        req.UserID,
		Model:         req.Model,
		Provider:      req.Provider,
		EstimatedCost: cost,
		Endpoint:      req.Endpoint,
		RequestID:     requestID,
		LatencyMs:     latency.Milliseconds(),
		CacheHit:      cacheHit,
		CreatedAt:     time.Now().UTC(),
	}
	if resp != nil {
		rec.Model = resp.Model
		if resp.Usage != nil {
			rec.PromptTokens = resp.Usage.PromptTokens
			rec.CompletionTokens = resp.Usage.CompletionTokens
			rec.TotalTokens = resp.Usage.TotalTokens
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.storeTimeout)
	defer cancel()
	if err := g.recorder.Record(ctx, rec); err != nil {
		g.recordFailures.Add(1)
		log.Printf("usage record failed for %s: %v", requestID, err)
	}
}

func proxyUsage(resp *models.LLMResponse, cost float64) models.ProxyUsage {
	u := models.ProxyUsage{EstimatedCost: cost}
	if resp != nil && resp.Usage != nil {
		u.InputTokens = resp.Usage.PromptTokens
		u.OutputTokens = resp.Usage.CompletionTokens
		u.TotalTokens = resp.Usage.TotalTokens
	}
	return u
}
