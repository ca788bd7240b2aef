// Package ingestion implements the document ingestion pipeline.
// It fetches documentation pages, chunks the content, embeds each chunk
// passage-side, and bulk-indexes the results into the search engine.
// This pipeline is invoked by the `askdocs ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/d3vah/askdocs-go/internal/rag"
	"github.com/d3vah/askdocs-go/internal/search"
)

// Source describes a documentation source to be ingested.
type Source struct {
	// URL is the HTTP(S) URL of the documentation page to fetch.
	URL string

	// DocName is the human-readable document name stored with each chunk.
	// If empty it is inferred from the URL.
	DocName string

	// DocType classifies the documentation kind (reference, guide, tutorial,
	// api, changelog). If empty it is inferred from the URL.
	DocType string
}

// Indexer persists embedded chunks into the search engine.
// *search.Client satisfies it.
type Indexer interface {
	// Bulk indexes the given documents in a single request.
	Bulk(ctx context.Context, docs []search.Document) error
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// HTTPTimeout is the timeout for each documentation fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the fetch → chunk → embed → index flow for a set
// of documentation sources.
type Pipeline struct {
	// embedder converts text chunks into passage-side embeddings.
	embedder rag.Embedder

	// indexer bulk-indexes the embedded chunks.
	indexer Indexer

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching documentation pages.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, indexer Indexer, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if indexer == nil {
		return nil, fmt.Errorf("ingestion: indexer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "askdocs-go/1.0 (documentation ingestion)"
	}

	return &Pipeline{
		embedder: embedder,
		indexer:  indexer,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest fetches, chunks, embeds, and indexes all provided sources.
// It processes sources sequentially and returns the first error encountered.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, src := range sources {
		progress(fmt.Sprintf("fetching %s", src.URL))

		content, err := p.fetch(ctx, src.URL)
		if err != nil {
			return fmt.Errorf("ingestion: fetch failed for %s: %w", src.URL, err)
		}

		chunks := p.chunk(content)
		progress(fmt.Sprintf("chunked %s into %d chunks", src.URL, len(chunks)))
		if len(chunks) == 0 {
			continue
		}

		embeddings, err := p.embedder.Embed(ctx, chunks)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed for %s: %w", src.URL, err)
		}
		if len(embeddings) != len(chunks) {
			return fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
		}

		meta := InferMetadata(src.URL)
		docName := src.DocName
		if docName == "" {
			docName = meta.DocName
		}
		docType := src.DocType
		if docType == "" {
			docType = meta.DocType
		}

		docs := make([]search.Document, 0, len(chunks))
		for i, chunk := range chunks {
			docs = append(docs, search.Document{
				ID:        chunkID(src.URL, i),
				Text:      chunk,
				DocName:   docName,
				Embedding: embeddings[i],
				Metadata: map[string]string{
					"source":      src.URL,
					"doc_type":    docType,
					"chunk_index": fmt.Sprintf("%d", i),
				},
			})
		}

		if err := p.indexer.Bulk(ctx, docs); err != nil {
			return fmt.Errorf("ingestion: bulk index failed for %s: %w", src.URL, err)
		}

		progress(fmt.Sprintf("indexed %d chunks from %s", len(chunks), src.URL))
	}

	return nil
}

// fetch retrieves the text content of a URL, stripping markup when the
// response is HTML.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		text = stripHTML(text)
	}
	return text, nil
}

// tagPattern matches HTML tags for removal. Script and style blocks are
// removed wholesale first so their contents never reach the index.
var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)\b.*?</(script|style)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
)

// stripHTML reduces an HTML page to its visible text content. This is a
// lightweight reduction, not a full parser — good enough for documentation
// pages where the prose dominates.
func stripHTML(s string) string {
	s = scriptPattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(s)
	s = spacePattern.ReplaceAllString(s, " ")
	s = blankPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
func (p *Pipeline) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}

	return chunks
}

// chunkID generates a deterministic ID for a document chunk based on its
// source URL and chunk index.
func chunkID(sourceURL string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourceURL, index)))
	return fmt.Sprintf("%x", h[:16])
}
