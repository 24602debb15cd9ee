package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/arclight-ai/arclight/pkg/gwerr"
	"github.com/arclight-ai/arclight/pkg/models"
)

// DefaultOpenAIBaseURL is used when no upstream base URL is configured.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI translates the envelope to the OpenAI chat completions wire
// format. Outbound calls are paced with a shared token bucket so a burst
// of gateway traffic does not hammer the upstream.
type OpenAI struct {
	baseURL string
	client  *http.Client
	pacer   *rate.Limiter
}

// NewOpenAI creates an OpenAI adapter. rps <= 0 disables pacing.
func NewOpenAI(baseURL string, timeout time.Duration, rps float64) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	var pacer *rate.Limiter
	if rps > 0 {
		pacer = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return &OpenAI{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		pacer:   pacer,
	}
}

func (o *OpenAI) Name() string { return "openai" }

// wireRequest is the OpenAI chat completions request shape.
type wireRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream,omitempty"`
}

// wireResponse is the OpenAI chat completions response shape.
type wireResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int                `json:"index"`
		Message      models.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage *models.Usage `json:"usage,omitempty"`
}

func (o *OpenAI) do(ctx context.Context, req *models.ProxyRequest, apiKey string, stream bool) (*http.Response, error) {
	if o.pacer != nil {
		if err := o.pacer.Wait(ctx); err != nil {
			return nil, classify(err, 0)
		}
	}

	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, gwerr.New(gwerr.KindProvider, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, gwerr.New(gwerr.KindProvider, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classify(err, 0)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused; the
		// body never reaches the caller.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, classify(fmt.Errorf("upstream status %d: %s", resp.StatusCode, raw), resp.StatusCode)
	}
	return resp, nil
}

// Complete performs a non-streaming completion call.
func (o *OpenAI) Complete(ctx context.Context, req *models.ProxyRequest, apiKey string) (*models.LLMResponse, error) {
	resp, err := o.do(ctx, req, apiKey, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, gwerr.New(gwerr.KindProvider, fmt.Errorf("decode response: %w", err))
	}

	out := &models.LLMResponse{
		ID:      wire.ID,
		Object:  wire.Object,
		Created: wire.Created,
		Model:   wire.Model,
		Usage:   wire.Usage,
	}
	for _, c := range wire.Choices {
		out.Choices = append(out.Choices, models.Choice{
			Index:        c.Index,
			Message:      c.Message,
			FinishReason: c.FinishReason,
		})
	}
	return out, nil
}

// Stream performs a streaming call and returns the raw SSE body.
func (o *OpenAI) Stream(ctx context.Context, req *models.ProxyRequest, apiKey string) (io.ReadCloser, error) {
	resp, err := o.do(ctx, req, apiKey, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// classify maps an upstream failure to the gateway error taxonomy. The
// wrapped cause stays internal; callers only see the kind's message.
func classify(err error, status int) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return gwerr.New(gwerr.KindProviderTimeout, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return gwerr.New(gwerr.KindProviderAuth, err)
	case status == http.StatusTooManyRequests:
		return gwerr.New(gwerr.KindProviderRateLimit, err)
	default:
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return gwerr.New(gwerr.KindProviderTimeout, err)
		}
		return gwerr.New(gwerr.KindProvider, err)
	}
}
