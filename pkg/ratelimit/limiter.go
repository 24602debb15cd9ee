// Package ratelimit enforces per-scope quotas across three aligned
// windows (minute, hour, day) backed by a persistent counter store.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/arclight-ai/arclight/pkg/models"
)

// WindowQuota describes one window to evaluate during admission.
type WindowQuota struct {
	Kind  models.WindowKind
	Start time.Time
	Limit int64
}

// AdmitResult reports the outcome of an admission attempt. Counts holds
// the post-call counter values in the same order as the quotas.
type AdmitResult struct {
	Allowed bool
	Counts  []int64
}

// CounterStore is the persistent counter the limiter runs against. The
// store, not the limiter, guarantees atomicity: Admit checks every window
// and increments them in a single transaction, so concurrent requests for
// one scope cannot under-count admissions, and a denied request consumes
// no quota.
type CounterStore interface {
	Admit(ctx context.Context, scope string, quotas []WindowQuota) (*AdmitResult, error)

	// Count reads the current count without admitting anything.
	Count(ctx context.Context, scope string, window models.WindowKind, windowStart time.Time) (int64, error)
}

// Limits holds the per-window quotas.
type Limits struct {
	PerMinute int64
	PerHour   int64
	PerDay    int64
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{PerMinute: 20, PerHour: 100, PerDay: 1000}
}

func (l Limits) forWindow(w models.WindowKind) int64 {
	switch w {
	case models.WindowHour:
		return l.PerHour
	case models.WindowDay:
		return l.PerDay
	default:
		return l.PerMinute
	}
}

var windows = []models.WindowKind{models.WindowMinute, models.WindowHour, models.WindowDay}

// Limiter evaluates all three windows for a scope. One instance is shared
// by every in-flight request.
type Limiter struct {
	store  CounterStore
	limits Limits

	now func() time.Time // test seam
}

// New creates a Limiter over the given store.
func New(store CounterStore, limits Limits) *Limiter {
	return &Limiter{store: store, limits: limits, now: time.Now}
}

func (l *Limiter) quotas(now time.Time) []WindowQuota {
	qs := make([]WindowQuota, 0, len(windows))
	for _, w := range windows {
		qs = append(qs, WindowQuota{Kind: w, Start: w.Start(now), Limit: l.limits.forWindow(w)})
	}
	return qs
}

// Allow admits or denies one request for scope. Admission increments all
// three window counters in one store-side transaction. If the store
// itself fails, the request is admitted anyway (fail open): availability
// is preferred over strict enforcement, and the result says so.
func (l *Limiter) Allow(ctx context.Context, scope string) models.RateLimitResult {
	quotas := l.quotas(l.now())

	admit, err := l.store.Admit(ctx, scope, quotas)
	if err != nil {
		log.Printf("rate limit store error for scope %s, failing open: %v", scope, err)
		result := models.RateLimitResult{Allowed: true, FailedOpen: true}
		for _, q := range quotas {
			result.Windows = append(result.Windows, models.WindowStatus{
				Kind:      q.Kind,
				Limit:     q.Limit,
				Remaining: q.Limit,
				ResetAt:   q.Start.Add(q.Kind.Duration()),
			})
		}
		return result
	}

	result := models.RateLimitResult{Allowed: admit.Allowed}
	for i, q := range quotas {
		remaining := q.Limit - admit.Counts[i]
		if remaining < 0 {
			remaining = 0
		}
		result.Windows = append(result.Windows, models.WindowStatus{
			Kind:      q.Kind,
			Limit:     q.Limit,
			Remaining: remaining,
			ResetAt:   q.Start.Add(q.Kind.Duration()),
		})
	}
	return result
}

// Peek reports window status for a scope without admitting a request.
func (l *Limiter) Peek(ctx context.Context, scope string) (models.RateLimitResult, error) {
	now := l.now()
	result := models.RateLimitResult{Allowed: true}

	for _, q := range l.quotas(now) {
		count, err := l.store.Count(ctx, scope, q.Kind, q.Start)
		if err != nil {
			return models.RateLimitResult{}, err
		}

		remaining := q.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		if count >= q.Limit {
			result.Allowed = false
		}
		result.Windows = append(result.Windows, models.WindowStatus{
			Kind:      q.Kind,
			Limit:     q.Limit,
			Remaining: remaining,
			ResetAt:   q.Start.Add(q.Kind.Duration()),
		})
	}

	return result, nil
}
