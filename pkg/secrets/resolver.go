package secrets

import (
	"context"
	"errors"
	"log"

	"github.com/arclight-ai/arclight/pkg/gwerr"
)

// Source produces a plaintext credential for a (provider, scope) pair.
// ok is false when the source has no opinion and the next source should
// be tried; an error stops resolution.
type Source interface {
	Resolve(ctx context.Context, provider, scope string) (key string, ok bool, err error)
}

// ConfigSource serves process-wide key overrides, used verbatim.
type ConfigSource struct {
	lookup func(provider string) (string, bool)
}

// NewConfigSource wraps an override lookup, typically config.OverrideFor.
func NewConfigSource(lookup func(provider string) (string, bool)) *ConfigSource {
	return &ConfigSource{lookup: lookup}
}

func (c *ConfigSource) Resolve(_ context.Context, provider, _ string) (string, bool, error) {
	key, ok := c.lookup(provider)
	return key, ok, nil
}

// StoreSource serves persisted credentials, decrypted with the operator
// secret. Stored values that do not parse as sealed blobs are accepted
// verbatim only when allowPlaintext is set.
type StoreSource struct {
	store          *Store
	secret         string
	allowPlaintext bool
}

// NewStoreSource creates a StoreSource over a credential store.
func NewStoreSource(store *Store, secret string, allowPlaintext bool) *StoreSource {
	return &StoreSource{store: store, secret: secret, allowPlaintext: allowPlaintext}
}

func (s *StoreSource) Resolve(ctx context.Context, provider, scope string) (string, bool, error) {
	sealed, found, err := s.store.Get(ctx, scope, provider)
	if err != nil {
		return "", false, gwerr.New(gwerr.KindCredential, err)
	}
	if !found {
		return "", false, nil
	}

	if !LooksSealed(sealed) {
		if s.allowPlaintext {
			log.Printf("credential for provider %s scope %s is stored in plaintext", provider, scope)
			return sealed, true, nil
		}
		return "", false, gwerr.New(gwerr.KindCredential, ErrMalformed)
	}

	key, err := Open(sealed, s.secret)
	if err != nil {
		return "", false, gwerr.New(gwerr.KindCredential, err)
	}
	return key, true, nil
}

// Resolver tries each source in order and returns the first credential
// found. The resolved plaintext is handed to the caller for one request
// and never retained here.
type Resolver struct {
	sources []Source
}

// NewResolver creates a Resolver over an ordered source list.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Resolve returns the credential for (provider, scope) or a credential
// error when no source can serve one.
func (r *Resolver) Resolve(ctx context.Context, provider, scope string) (string, error) {
	for _, src := range r.sources {
		key, ok, err := src.Resolve(ctx, provider, scope)
		if err != nil {
			var ge *gwerr.Error
			if errors.As(err, &ge) {
				return "", err
			}
			return "", gwerr.New(gwerr.KindCredential, err)
		}
		if ok {
			return key, nil
		}
	}
	return "", gwerr.Newf(gwerr.KindCredential, "no credential configured for provider")
}
