package models

import "time"

// WindowKind identifies one of the three concurrent rate-limit windows.
type WindowKind string

const (
	WindowMinute WindowKind = "minute"
	WindowHour   WindowKind = "hour"
	WindowDay    WindowKind = "day"
)

// Duration returns the span of the window.
func (w WindowKind) Duration() time.Duration {
	switch w {
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Start returns the aligned start of the window containing t.
func (w WindowKind) Start(t time.Time) time.Time {
	return t.UTC().Truncate(w.Duration())
}

// WindowStatus reports one window's state after a rate-limit decision.
type WindowStatus struct {
	Kind      WindowKind `json:"kind"`
	Limit     int64      `json:"limit"`
	Remaining int64      `json:"remaining"`
	ResetAt   time.Time  `json:"reset_at"`
}

// RateLimitResult is the outcome of a rate-limit check for a scope.
// FailedOpen is set when the counter store was unreachable and the
// request was admitted anyway.
type RateLimitResult struct {
	Allowed    bool           `json:"allowed"`
	Windows    []WindowStatus `json:"windows"`
	FailedOpen bool           `json:"failed_open,omitempty"`
}
