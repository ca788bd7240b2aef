// Package rag implements the retrieval-augmented generation pipeline:
// embed the question, run a hybrid (lexical + vector) search against the
// document index, render the ranked hits into a prompt, and stream the
// generated answer. Concrete backends (OpenSearch, Ollama, OpenAI, ...)
// satisfy the interfaces here so the pipeline never depends on a specific
// external system.
package rag

import (
	"context"
)

// Hit is a single ranked result returned by the search engine.
// Ordering is descending by Score; the fused score has no fixed range —
// it is whatever the engine's scoring pipeline produced.
type Hit struct {
	// Score is the engine-assigned relevance score (fusion of the lexical
	// and vector sub-scores when a scoring pipeline is active).
	Score float64

	// Text is the stored text of the matched chunk.
	Text string

	// DocName is the originating document name.
	DocName string

	// Metadata holds any remaining source fields (chunk index, URL, ...).
	Metadata map[string]string
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the interface for hybrid search over the document index.
// The query text and its embedding are submitted together so the engine can
// combine a lexical match with a nearest-neighbour lookup in one request.
// Implementations must be safe to call from multiple goroutines.
type Searcher interface {
	// Search returns up to size hits for the given query text and vector,
	// in the exact order the engine ranked them.
	Search(ctx context.Context, query string, vector []float32, size int) ([]Hit, error)
}
