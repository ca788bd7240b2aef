package embedder

import (
	"context"

	"github.com/d3vah/askdocs-go/internal/rag"
)

// Prefixes used by asymmetric embedding models (e.g. the e5 family), which
// expect query-side and passage-side inputs to be marked differently.
const (
	// QueryPrefix marks text embedded at search time.
	QueryPrefix = "query: "
	// PassagePrefix marks text embedded at ingest time.
	PassagePrefix = "passage: "
)

// PrefixEmbedder decorates an inner Embedder, prepending a fixed prefix to
// every input text before embedding. Used to support asymmetric embedding
// models without leaking the prefixing concern into callers.
type PrefixEmbedder struct {
	// inner is the wrapped embedder.
	inner rag.Embedder
	// prefix is prepended to every input text.
	prefix string
}

// NewPrefixEmbedder wraps inner so every input is prefixed before embedding.
func NewPrefixEmbedder(inner rag.Embedder, prefix string) *PrefixEmbedder {
	return &PrefixEmbedder{inner: inner, prefix: prefix}
}

// Embed prefixes each text and delegates to the inner embedder.
func (p *PrefixEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = p.prefix + t
	}
	return p.inner.Embed(ctx, prefixed) //nolint:wrapcheck // decorator passthrough
}

// ForQueries returns inner wrapped with the query prefix when asymmetric
// embedding is enabled, or inner unchanged otherwise.
func ForQueries(inner rag.Embedder, asymmetric bool) rag.Embedder {
	if !asymmetric {
		return inner
	}
	return NewPrefixEmbedder(inner, QueryPrefix)
}

// ForPassages returns inner wrapped with the passage prefix when asymmetric
// embedding is enabled, or inner unchanged otherwise.
func ForPassages(inner rag.Embedder, asymmetric bool) rag.Embedder {
	if !asymmetric {
		return inner
	}
	return NewPrefixEmbedder(inner, PassagePrefix)
}
