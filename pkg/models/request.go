package models

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProxyRequest is the uniform request envelope the gateway accepts,
// independent of any provider wire format. It lives for one call.
type ProxyRequest struct {
	Provider    string        `json:"provider"`
	Scope       string        `json:"scope"`
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Endpoint    string        `json:"endpoint,omitempty"`
	UserID      string        `json:"user_id,omitempty"`
}

// Usage represents token usage from an LLM response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// LLMResponse is the uniform response envelope produced by provider adapters.
type LLMResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// ProxyUsage is the caller-visible usage block, including estimated cost.
type ProxyUsage struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	TotalTokens   int     `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// ProxyResponse is the gateway's reply for a completed non-streaming call.
type ProxyResponse struct {
	Data      *LLMResponse `json:"data"`
	Usage     ProxyUsage   `json:"usage"`
	Cached    bool         `json:"cached"`
	RequestID string       `json:"request_id"`
}
