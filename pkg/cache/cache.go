// Package cache is an in-memory, exact-match response cache with sliding
// TTL and a bounded entry count. Reads and writes never block on I/O.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arclight-ai/arclight/pkg/models"
)

// DefaultTemperature is applied when a request omits temperature, so that
// an explicit 1.0 and an absent value fingerprint identically.
const DefaultTemperature = 1.0

var (
	// ErrStreaming rejects cache writes for streaming requests.
	ErrStreaming = errors.New("streaming responses are not cacheable")
	// ErrNoUsage rejects cache writes for responses without usage data.
	ErrNoUsage = errors.New("responses without usage data are not cacheable")
)

// fingerprintKey fixes the canonical field order for hashing. Struct
// serialization keeps json.Marshal deterministic regardless of how the
// caller built the request.
type fingerprintKey struct {
	Provider    string               `json:"provider"`
	Scope       string               `json:"scope"`
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

// Fingerprint computes the deterministic cache key for a request.
func Fingerprint(req *models.ProxyRequest) string {
	key := fingerprintKey{
		Provider:    req.Provider,
		Scope:       req.Scope,
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: DefaultTemperature,
	}
	if req.Temperature != nil {
		key.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		key.MaxTokens = *req.MaxTokens
	}
	data, _ := json.Marshal(key)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("llm:%s:%x", req.Provider, sum)
}

type entry struct {
	fingerprint string
	response    *models.LLMResponse
	storedAt    time.Time
	elem        *list.Element
}

// Store holds cached responses. It is safe for concurrent use; all
// in-flight requests share one instance.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      *list.List // front = most recently used
	ttl        time.Duration
	maxEntries int

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time // test seam
}

// New creates a Store with the given sliding TTL and capacity.
func New(ttl time.Duration, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{
		entries:    make(map[string]*entry),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached response for a fingerprint. A hit refreshes the
// entry's stored-at time, extending its remaining lifetime.
func (s *Store) Get(fingerprint string) (*models.LLMResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fingerprint]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.now().Sub(e.storedAt) > s.ttl {
		s.removeLocked(e)
		s.misses++
		return nil, false
	}

	e.storedAt = s.now()
	s.order.MoveToFront(e.elem)
	s.hits++
	return e.response, true
}

// Put stores a response under a fingerprint. Streaming requests and
// responses lacking usage data are refused.
func (s *Store) Put(fingerprint string, req *models.ProxyRequest, resp *models.LLMResponse) error {
	if req.Stream {
		return ErrStreaming
	}
	if resp == nil || resp.Usage == nil {
		return ErrNoUsage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[fingerprint]; ok {
		e.response = resp
		e.storedAt = s.now()
		s.order.MoveToFront(e.elem)
		return nil
	}

	for len(s.entries) >= s.maxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.removeLocked(oldest.Value.(*entry))
		s.evictions++
	}

	e := &entry{fingerprint: fingerprint, response: resp, storedAt: s.now()}
	e.elem = s.order.PushFront(e)
	s.entries[fingerprint] = e
	return nil
}

// Stats returns cache performance metrics.
func (s *Store) Stats() models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CacheStats{
		Entries:   int64(len(s.entries)),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.order.Init()
}

func (s *Store) removeLocked(e *entry) {
	delete(s.entries, e.fingerprint)
	s.order.Remove(e.elem)
}
