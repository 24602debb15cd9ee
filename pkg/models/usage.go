package models

import "time"

// UsageRecord is one row of the append-only usage log. Writes are
// best-effort; a failed insert never changes the caller-visible outcome.
type UsageRecord struct {
	ID               int64     `json:"id"`
	Scope            string    `json:"scope"`
	UserID           string    `json:"user_id"`
	Model            string    `json:"model"`
	Provider         string    `json:"provider"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
	Endpoint         string    `json:"endpoint,omitempty"`
	RequestID        string    `json:"request_id"`
	LatencyMs        int64     `json:"latency_ms"`
	CacheHit         bool      `json:"cache_hit"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across requests.
type UsageSummary struct {
	Scope           string  `json:"scope"`
	Model           string  `json:"model"`
	RequestCount    int     `json:"request_count"`
	CacheHits       int     `json:"cache_hits"`
	TotalPrompt     int     `json:"total_prompt"`
	TotalCompletion int     `json:"total_completion"`
	TotalTokens     int     `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
}
