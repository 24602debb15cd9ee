package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arclight-ai/arclight/pkg/cache"
	"github.com/arclight-ai/arclight/pkg/config"
	"github.com/arclight-ai/arclight/pkg/gateway"
	"github.com/arclight-ai/arclight/pkg/models"
	"github.com/arclight-ai/arclight/pkg/pricing"
	"github.com/arclight-ai/arclight/pkg/provider"
	"github.com/arclight-ai/arclight/pkg/ratelimit"
	"github.com/arclight-ai/arclight/pkg/secrets"
)

type stubRecorder struct {
	mu      sync.Mutex
	records []models.UsageRecord
}

func (s *stubRecorder) Record(_ context.Context, rec models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *stubRecorder) Summary(context.Context, string) ([]models.UsageSummary, error) {
	return []models.UsageSummary{
		{Scope: "default", Model: "gpt-4o", RequestCount: 1, TotalTokens: 15},
	}, nil
}

func (s *stubRecorder) Close() error { return nil }

type denyStore struct{}

func (denyStore) Admit(context.Context, string, []ratelimit.WindowQuota) (*ratelimit.AdmitResult, error) {
	return &ratelimit.AdmitResult{Allowed: false, Counts: []int64{20, 20, 20}}, nil
}

func (denyStore) Count(context.Context, string, models.WindowKind, time.Time) (int64, error) {
	return 20, nil
}

func newTestServer(t *testing.T, upstreamStatus int, store ratelimit.CounterStore) *Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if upstreamStatus != http.StatusOK {
			http.Error(w, `{"error": "upstream detail"}`, upstreamStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1756700000,
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	t.Cleanup(upstream.Close)

	var limiter *ratelimit.Limiter
	if store != nil {
		limiter = ratelimit.New(store, ratelimit.DefaultLimits())
	}

	gw := gateway.New(gateway.Options{
		Cache:   cache.New(time.Minute, 10),
		Limiter: limiter,
		Resolver: secrets.NewResolver(secrets.NewConfigSource(func(string) (string, bool) {
			return "sk-test", true
		})),
		Registry: provider.NewRegistry(
			provider.NewOpenAI(upstream.URL, 5*time.Second, 0),
			provider.Unimplemented{Tag: "anthropic"},
		),
		Pricer:       pricing.New(nil, 0, 0),
		Recorder:     &stubRecorder{},
		StoreTimeout: time.Second,
	})

	cfg := config.Default()
	return New(cfg, gw, &stubRecorder{})
}

func chatBody() string {
	return `{"model": "gpt-4o", "messages": [{"role": "user", "content": "hello"}]}`
}

func doChat(s *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestChatCompletionsSuccess(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	w := doChat(s, chatBody(), map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Arclight-Cache"); got != "miss" {
		t.Errorf("cache header = %q, want miss", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var resp models.ProxyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cached {
		t.Error("first call should not be cached")
	}
	if resp.Data == nil || resp.Data.ID != "chatcmpl-1" {
		t.Errorf("data = %+v", resp.Data)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatCompletionsCacheHitHeader(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)
	headers := map[string]string{"X-User-ID": "u1"}

	if w := doChat(s, chatBody(), headers); w.Code != http.StatusOK {
		t.Fatalf("first call status = %d", w.Code)
	}

	w := doChat(s, chatBody(), headers)
	if got := w.Header().Get("X-Arclight-Cache"); got != "hit" {
		t.Errorf("immediate repeat request cache header = %q, want hit", got)
	}
}

func TestChatCompletionsMissingIdentity(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	w := doChat(s, chatBody(), nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestChatCompletionsBadBody(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	w := doChat(s, "{not json", map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChatCompletionsValidationStatus(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	w := doChat(s, `{"model": "", "messages": []}`, map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChatCompletionsRateLimitedStatus(t *testing.T) {
	s := newTestServer(t, http.StatusOK, denyStore{})

	w := doChat(s, chatBody(), map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Type != "rate_limited" {
		t.Errorf("error type = %q", body.Error.Type)
	}
}

func TestChatCompletionsUpstreamAuthStatus(t *testing.T) {
	s := newTestServer(t, http.StatusUnauthorized, nil)

	w := doChat(s, chatBody(), map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid credential, contact administrator") {
		t.Errorf("body leaks upstream detail: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "upstream detail") {
		t.Errorf("body leaks raw upstream output: %s", w.Body.String())
	}
}

func TestChatCompletionsUnimplementedProvider(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	body := `{"provider": "anthropic", "model": "claude-sonnet-4-20250514", "messages": [{"role": "user", "content": "hi"}]}`
	w := doChat(s, body, map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}

func TestWorkspaceHeaderSetsScope(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	w := doChat(s, chatBody(), map[string]string{
		"X-User-ID":      "u1",
		"X-Workspace-ID": "team-a",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// Scope participates in the fingerprint: the same workspace is served
	// from cache, a different workspace is not.
	repeat := doChat(s, chatBody(), map[string]string{"X-User-ID": "u1", "X-Workspace-ID": "team-a"})
	if repeat.Header().Get("X-Arclight-Cache") != "hit" {
		t.Error("repeat request in the same workspace should hit the cache")
	}

	other := doChat(s, chatBody(), map[string]string{"X-User-ID": "u1", "X-Workspace-ID": "team-b"})
	if other.Header().Get("X-Arclight-Cache") != "miss" {
		t.Error("cache entries must not cross workspace scopes")
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats gateway.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
}

func TestUsageEndpoint(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/usage?scope=default", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var summaries []models.UsageSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Model != "gpt-4o" {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestRateLimitEndpoint(t *testing.T) {
	s := newTestServer(t, http.StatusOK, denyStore{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ratelimit?scope=team-a", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var result models.RateLimitResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Allowed {
		t.Error("exhausted scope should report not allowed")
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, http.StatusOK, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
