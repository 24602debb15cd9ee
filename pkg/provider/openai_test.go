package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arclight-ai/arclight/pkg/gwerr"
	"github.com/arclight-ai/arclight/pkg/models"
)

func testRequest() *models.ProxyRequest {
	return &models.ProxyRequest{
		Provider: "openai",
		Scope:    "default",
		Model:    "gpt-4o",
		Messages: []models.ChatMessage{
			{Role: "user", Content: "hello"},
		},
	}
}

func completionBody(id string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"object": "chat.completion",
		"created": 1756700000,
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`, id)
}

func TestCompleteWireTranslation(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody wireRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("chatcmpl-123"))
	}))
	defer srv.Close()

	adapter := NewOpenAI(srv.URL, 5*time.Second, 0)
	resp, err := adapter.Complete(context.Background(), testRequest(), "sk-test")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("upstream path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o" || len(gotBody.Messages) != 1 {
		t.Errorf("wire request = %+v", gotBody)
	}
	if gotBody.Stream {
		t.Error("non-streaming call must not set stream")
	}

	if resp.ID != "chatcmpl-123" {
		t.Errorf("response ID = %q", resp.ID)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hi" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestCompleteErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   gwerr.Kind
	}{
		{http.StatusUnauthorized, gwerr.KindProviderAuth},
		{http.StatusForbidden, gwerr.KindProviderAuth},
		{http.StatusTooManyRequests, gwerr.KindProviderRateLimit},
		{http.StatusInternalServerError, gwerr.KindProvider},
		{http.StatusBadRequest, gwerr.KindProvider},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error": "upstream detail"}`, tt.status)
			}))
			defer srv.Close()

			adapter := NewOpenAI(srv.URL, 5*time.Second, 0)
			_, err := adapter.Complete(context.Background(), testRequest(), "sk-test")
			if err == nil {
				t.Fatal("expected an error")
			}
			if gwerr.KindOf(err) != tt.kind {
				t.Errorf("kind = %s, want %s", gwerr.KindOf(err), tt.kind)
			}
		})
	}
}

func TestCompleteAuthFailureMessageIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "Incorrect API key provided: sk-test"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewOpenAI(srv.URL, 5*time.Second, 0)
	_, err := adapter.Complete(context.Background(), testRequest(), "sk-test")
	if err == nil {
		t.Fatal("expected an error")
	}

	msg := gwerr.UserMessage(err)
	if msg != "invalid credential, contact administrator" {
		t.Errorf("user message = %q", msg)
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	adapter := NewOpenAI(srv.URL, 5*time.Second, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := adapter.Complete(ctx, testRequest(), "sk-test")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if gwerr.KindOf(err) != gwerr.KindProviderTimeout {
		t.Errorf("kind = %s, want %s", gwerr.KindOf(err), gwerr.KindProviderTimeout)
	}
}

func TestStreamSetsFlagAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body wireRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		if !body.Stream {
			t.Error("streaming call must set stream")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"chunk-1\"}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	adapter := NewOpenAI(srv.URL, 5*time.Second, 0)
	req := testRequest()
	req.Stream = true

	body, err := adapter.Stream(context.Background(), req, "sk-test")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	var lines []string
	for scanner.Scan() {
		if scanner.Text() != "" {
			lines = append(lines, scanner.Text())
		}
	}
	if len(lines) != 2 || lines[1] != "data: [DONE]" {
		t.Errorf("stream lines = %v", lines)
	}
}

func TestDefaultBaseURL(t *testing.T) {
	adapter := NewOpenAI("", time.Second, 0)
	if adapter.baseURL != DefaultOpenAIBaseURL {
		t.Errorf("baseURL = %q", adapter.baseURL)
	}
}
