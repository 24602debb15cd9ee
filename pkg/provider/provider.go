// Package provider translates the uniform request/response envelope
// to and from external LLM provider wire protocols.
package provider

import (
	"context"
	"io"

	"github.com/arclight-ai/arclight/pkg/gwerr"
	"github.com/arclight-ai/arclight/pkg/models"
)

// Adapter is the capability interface one provider variant implements.
type Adapter interface {
	// Name returns the provider tag this adapter serves.
	Name() string

	// Complete performs a non-streaming completion call.
	Complete(ctx context.Context, req *models.ProxyRequest, apiKey string) (*models.LLMResponse, error)

	// Stream performs a streaming call and returns the raw event stream.
	// The stream is finite; the caller owns the reader and must close it.
	Stream(ctx context.Context, req *models.ProxyRequest, apiKey string) (io.ReadCloser, error)
}

// Unimplemented is the explicit stub for provider tags a deployment knows
// about but does not serve. Every method fails fast with a typed error.
type Unimplemented struct {
	Tag string
}

func (u Unimplemented) Name() string { return u.Tag }

func (u Unimplemented) Complete(context.Context, *models.ProxyRequest, string) (*models.LLMResponse, error) {
	return nil, gwerr.Newf(gwerr.KindNotImplemented, "provider %q is not supported", u.Tag)
}

func (u Unimplemented) Stream(context.Context, *models.ProxyRequest, string) (io.ReadCloser, error) {
	return nil, gwerr.Newf(gwerr.KindNotImplemented, "provider %q is not supported", u.Tag)
}

// Registry maps provider tags to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a Registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get resolves a provider tag. Unknown tags resolve to an Unimplemented
// adapter rather than nil, so callers always get a typed failure.
func (r *Registry) Get(tag string) Adapter {
	if a, ok := r.adapters[tag]; ok {
		return a
	}
	return Unimplemented{Tag: tag}
}
