// Package resources resolves resource URIs such as transcription://42 to
// records.
//
// Each Provider owns one URI scheme. The Registry selects a provider by the
// scheme of the requested URI. A nil record with a nil error means the URI
// did not resolve; that covers malformed URIs, unknown ids and schemes with
// no provider alike. Use Registry.Provider to tell an unknown scheme apart.
package resources

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateScheme is returned when two providers claim the same scheme.
var ErrDuplicateScheme = errors.New("duplicate resource scheme")

// Provider resolves URIs of a single scheme.
type Provider interface {
	// Scheme is the URI scheme without "://", e.g. "transcription".
	Scheme() string
	// Template is the RFC 6570 URI template advertised to clients.
	Template() string
	Description() string
	MIMEType() string
	// Resolve returns the record for uri, or nil when it does not exist.
	Resolve(ctx context.Context, uri string) (any, error)
}

// Registry is an immutable set of providers keyed by scheme.
type Registry struct {
	byScheme map[string]Provider
	order    []Provider
}

// NewRegistry indexes providers by scheme.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byScheme: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("resources: nil provider")
		}
		if _, dup := r.byScheme[p.Scheme()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateScheme, p.Scheme())
		}
		r.byScheme[p.Scheme()] = p
		r.order = append(r.order, p)
	}
	return r, nil
}

// Scheme returns the scheme of uri, or "" when uri has none.
func Scheme(uri string) string {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		return ""
	}
	return scheme
}

// Provider returns the provider responsible for uri's scheme.
func (r *Registry) Provider(uri string) (Provider, bool) {
	p, ok := r.byScheme[Scheme(uri)]
	return p, ok
}

// Resolve returns the record for uri or nil.
func (r *Registry) Resolve(ctx context.Context, uri string) (any, error) {
	p, ok := r.Provider(uri)
	if !ok {
		return nil, nil
	}
	return p.Resolve(ctx, uri)
}

// Providers returns the providers in registration order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, len(r.order))
	copy(out, r.order)
	return out
}

// Schemes returns the registered schemes in registration order.
func (r *Registry) Schemes() []string {
	out := make([]string, len(r.order))
	for i, p := range r.order {
		out[i] = p.Scheme()
	}
	return out
}
