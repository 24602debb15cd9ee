// Package validate normalizes and bounds-checks inbound requests before
// any hashing or network work. It is pure: no disk, no network, no clock.
package validate

import (
	"github.com/arclight-ai/arclight/pkg/gwerr"
	"github.com/arclight-ai/arclight/pkg/models"
)

// Defensive maxima. Anything beyond these is rejected, not truncated.
const (
	MaxModelLen    = 256
	MaxMessages    = 100
	MaxContentLen  = 32 * 1024
	MaxMaxTokens   = 128000
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

var knownRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
	"tool":      true,
}

// Sanitize checks req in place and returns it, or a validation error.
func Sanitize(req *models.ProxyRequest) (*models.ProxyRequest, error) {
	if req.Model == "" {
		return nil, gwerr.Newf(gwerr.KindValidation, "model is required")
	}
	if len(req.Model) > MaxModelLen {
		return nil, gwerr.Newf(gwerr.KindValidation, "model name too long")
	}
	if len(req.Messages) == 0 {
		return nil, gwerr.Newf(gwerr.KindValidation, "messages must not be empty")
	}
	if len(req.Messages) > MaxMessages {
		return nil, gwerr.Newf(gwerr.KindValidation, "too many messages (max %d)", MaxMessages)
	}
	for i, m := range req.Messages {
		if !knownRoles[m.Role] {
			return nil, gwerr.Newf(gwerr.KindValidation, "message %d: unknown role %q", i, m.Role)
		}
		if len(m.Content) > MaxContentLen {
			return nil, gwerr.Newf(gwerr.KindValidation, "message %d: content too long", i)
		}
	}
	if req.Temperature != nil {
		t := *req.Temperature
		if t < MinTemperature || t > MaxTemperature {
			return nil, gwerr.Newf(gwerr.KindValidation,
				"temperature must be between %g and %g", MinTemperature, MaxTemperature)
		}
	}
	if req.MaxTokens != nil {
		mt := *req.MaxTokens
		if mt <= 0 || mt > MaxMaxTokens {
			return nil, gwerr.Newf(gwerr.KindValidation, "max_tokens out of range")
		}
	}
	if req.Scope == "" {
		req.Scope = "default"
	}
	if req.Provider == "" {
		req.Provider = "openai"
	}
	return req, nil
}
