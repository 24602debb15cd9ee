// Package server exposes the gateway over HTTP. Authentication is an
// external collaborator: the caller identity arrives in a header that an
// upstream session layer is trusted to have verified.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arclight-ai/arclight/pkg/config"
	"github.com/arclight-ai/arclight/pkg/gateway"
	"github.com/arclight-ai/arclight/pkg/gwerr"
	"github.com/arclight-ai/arclight/pkg/models"
	"github.com/arclight-ai/arclight/pkg/usage"
)

// Server is the Arclight HTTP front end.
type Server struct {
	cfg      *config.Config
	gw       *gateway.Gateway
	recorder usage.Recorder
	mux      *http.ServeMux
}

// New creates a Server over a wired gateway.
func New(cfg *config.Config, gw *gateway.Gateway, rec usage.Recorder) *Server {
	s := &Server{cfg: cfg, gw: gw, recorder: rec, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("GET /v1/stats", s.handleStats)
	s.mux.HandleFunc("GET /v1/usage", s.handleUsage)
	s.mux.HandleFunc("GET /v1/ratelimit", s.handleRateLimit)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("arclight gateway listening on %s", s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// chatRequest is the inbound body. It is the OpenAI request shape plus an
// optional provider tag.
type chatRequest struct {
	Provider    string               `json:"provider,omitempty"`
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream,omitempty"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing caller identity", "auth")
		return
	}

	var in chatRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body", string(gwerr.KindValidation))
		return
	}
	r.Body.Close()

	req := &models.ProxyRequest{
		Provider:    in.Provider,
		Scope:       r.Header.Get("X-Workspace-ID"),
		Model:       in.Model,
		Messages:    in.Messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Stream:      in.Stream,
		Endpoint:    "chat.completions",
	}

	if in.Stream {
		s.streamCompletion(w, r, req, userID)
		return
	}

	resp, err := s.gw.Process(r.Context(), req, userID)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Cached {
		w.Header().Set("X-Arclight-Cache", "hit")
	} else {
		w.Header().Set("X-Arclight-Cache", "miss")
	}
	w.Header().Set("X-Request-ID", resp.RequestID)
	json.NewEncoder(w).Encode(resp)
}

// streamCompletion relays the raw provider event stream, flushing on SSE
// event boundaries.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req *models.ProxyRequest, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported", "stream")
		return
	}

	body, requestID, err := s.gw.Stream(r.Context(), req, userID)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintf(w, "%s\n", line)
		if line == "" {
			flusher.Flush()
		}
	}
	flusher.Flush()

	if err := scanner.Err(); err != nil && err != io.EOF {
		log.Printf("streaming relay error for %s: %v", requestID, err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.gw.Stats())
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONError(w, http.StatusNotFound, "usage log disabled", "usage")
		return
	}
	summaries, err := s.recorder.Summary(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "usage log unavailable", string(gwerr.KindInfrastructure))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "default"
	}
	result, err := s.gw.RateLimitStatus(r.Context(), scope)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "rate limit store unavailable", string(gwerr.KindInfrastructure))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(kind gwerr.Kind) int {
	switch kind {
	case gwerr.KindValidation:
		return http.StatusBadRequest
	case gwerr.KindRateLimited, gwerr.KindProviderRateLimit:
		return http.StatusTooManyRequests
	case gwerr.KindCredential, gwerr.KindProviderAuth:
		return http.StatusBadGateway
	case gwerr.KindProviderTimeout:
		return http.StatusGatewayTimeout
	case gwerr.KindInfrastructure:
		return http.StatusServiceUnavailable
	case gwerr.KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

func writeGatewayError(w http.ResponseWriter, err error) {
	kind := gwerr.KindOf(err)
	log.Printf("request failed (%s): %v", kind, err)
	writeJSONError(w, statusFor(kind), gwerr.UserMessage(err), string(kind))
}

func writeJSONError(w http.ResponseWriter, code int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":%q,"code":%d}}`, message, errType, code)
}
