package secret

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const scheme = "secret"

// Resolver resolves a secret reference into a concrete value.
// References use secret:// URIs, e.g. secret://env/OPENAI_API_KEY
// or secret://vault/kv/data/kasal?field=token.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Reference represents a parsed secret:// URI.
type Reference struct {
	Raw      string
	Provider string
	Path     string
	Segments []string
	Query    url.Values
}

// Parse converts a secret:// URI into a structured reference.
func Parse(ref string) (*Reference, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse secret reference %q: %w", ref, err)
	}
	if u.Scheme != scheme {
		return nil, fmt.Errorf("invalid secret scheme %q", u.Scheme)
	}

	provider := strings.ToLower(strings.TrimSpace(u.Host))
	if provider == "" {
		return nil, fmt.Errorf("secret reference %q missing provider", ref)
	}

	path := strings.TrimPrefix(u.Path, "/")
	segments := []string{}
	if path != "" {
		segments = strings.Split(path, "/")
	}

	return &Reference{
		Raw:      ref,
		Provider: provider,
		Path:     path,
		Segments: segments,
		Query:    u.Query(),
	}, nil
}

// IsReference reports whether the value looks like a secret://
// URI; plain values are passed through by ResolveValue.
func IsReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), scheme+"://")
}

// ResolveValue resolves value through r when it is a secret
// reference, otherwise returns it unchanged. A nil resolver
// passes everything through.
func ResolveValue(ctx context.Context, r Resolver, value string) (string, error) {
	if r == nil || !IsReference(value) {
		return value, nil
	}
	return r.Resolve(ctx, value)
}
