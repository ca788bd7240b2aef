// Package search implements the hybrid query composer for an
// OpenSearch-compatible engine. It builds the combined lexical+vector search
// request, submits it over the engine's REST API, and maps the ranked hits
// back to the pipeline's types. Scoring fusion itself is delegated to the
// engine's configured search pipeline — none of it is re-implemented here.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/d3vah/askdocs-go/internal/logging"
	"github.com/d3vah/askdocs-go/internal/rag"
)

// ErrPipelineMissing is returned by CheckPipeline when the configured search
// pipeline does not exist on the engine. Search still works without it — the
// engine falls back to default scoring, so rank fusion quality is degraded
// but results are returned.
var ErrPipelineMissing = errors.New("search: search pipeline not found")

// Config holds connection and schema parameters for the search engine.
type Config struct {
	// Host is the engine hostname (default: localhost).
	Host string

	// Port is the engine HTTP port (default: 9200).
	Port int

	// Index is the target index name.
	Index string

	// Pipeline is the engine-side scoring pipeline identifier sent as the
	// search_pipeline request parameter. Empty disables the parameter.
	Pipeline string

	// TextField is the indexed full-text field (default: "text").
	TextField string

	// VectorField is the indexed embedding field (default: "embedding").
	// It is always excluded from returned sources.
	VectorField string

	// DocNameField is the source field holding the originating document
	// name (default: "doc_name").
	DocNameField string

	// Timeout bounds each HTTP call to the engine (default: 30s).
	Timeout time.Duration
}

// Client talks to the search engine over its REST API. It is safe for
// concurrent use; every request is independent.
type Client struct {
	// cfg holds the resolved configuration.
	cfg *Config

	// baseURL is the engine endpoint, e.g. "http://localhost:9200".
	baseURL string

	// client is the shared HTTP client with the configured timeout.
	client *http.Client
}

// NewClient constructs a Client from the given config, applying defaults
// for unset fields.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Index == "" {
		return nil, fmt.Errorf("search: index name must not be empty")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9200
	}
	if cfg.TextField == "" {
		cfg.TextField = "text"
	}
	if cfg.VectorField == "" {
		cfg.VectorField = "embedding"
	}
	if cfg.DocNameField == "" {
		cfg.DocNameField = "doc_name"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:     cfg,
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// searchResponse is the engine's JSON response envelope, reduced to the
// fields the pipeline consumes.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64        `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// engineError is the engine's JSON error envelope.
type engineError struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// Search composes the hybrid query for (query, vector), submits it with the
// configured search pipeline, and returns the ranked hits in engine order.
//
// If the engine rejects the search_pipeline request parameter as
// unrecognised (an engine-API-version mismatch, surfaced as HTTP 400 naming
// the parameter), the identical body is reissued exactly once without the
// parameter. Connectivity failures are returned to the caller unrecovered.
func (c *Client) Search(ctx context.Context, query string, vector []float32, size int) ([]rag.Hit, error) {
	payload, err := buildHybridQuery(c.cfg.TextField, c.cfg.VectorField, query, vector, size)
	if err != nil {
		return nil, err
	}

	hits, err := c.doSearch(ctx, payload, c.cfg.Pipeline)
	if err != nil && c.cfg.Pipeline != "" && isPipelineParamError(err) {
		logging.FromContext(ctx).Warn("search: engine rejected search_pipeline parameter, retrying without it",
			slog.String("pipeline", c.cfg.Pipeline),
			slog.Any("error", err),
		)
		hits, err = c.doSearch(ctx, payload, "")
	}
	return hits, err
}

// doSearch submits one search request. pipeline, when non-empty, is sent as
// the search_pipeline query parameter.
func (c *Client) doSearch(ctx context.Context, payload []byte, pipeline string) ([]rag.Hit, error) {
	endpoint := fmt.Sprintf("%s/%s/_search", c.baseURL, url.PathEscape(c.cfg.Index))
	if pipeline != "" {
		endpoint += "?search_pipeline=" + url.QueryEscape(pipeline)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &requestError{status: resp.StatusCode, body: string(body)}
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	hits := make([]rag.Hit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		hits = append(hits, c.toHit(h.Score, h.Source))
	}
	return hits, nil
}

// toHit maps one engine hit source onto a rag.Hit. The text and document
// name fields are lifted out; every other source field lands in Metadata.
func (c *Client) toHit(score float64, source map[string]any) rag.Hit {
	hit := rag.Hit{
		Score:    score,
		Metadata: make(map[string]string),
	}
	for k, v := range source {
		switch k {
		case c.cfg.TextField:
			hit.Text, _ = v.(string)
		case c.cfg.DocNameField:
			hit.DocName, _ = v.(string)
		default:
			hit.Metadata[k] = fmt.Sprintf("%v", v)
		}
	}
	return hit
}

// CheckPipeline verifies that the configured search pipeline exists on the
// engine. Returns nil when the pipeline is present or none is configured,
// ErrPipelineMissing when the engine reports 404, and a wrapped transport
// error otherwise. A missing pipeline is not fatal — callers log a warning
// and continue in degraded mode.
func (c *Client) CheckPipeline(ctx context.Context) error {
	if c.cfg.Pipeline == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/_search/pipeline/%s", c.baseURL, url.PathEscape(c.cfg.Pipeline))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("search: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("search: pipeline check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %q", ErrPipelineMissing, c.cfg.Pipeline)
	case resp.StatusCode >= 300:
		return fmt.Errorf("search: pipeline check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Ping checks engine reachability via the cluster health endpoint.
// Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/_cluster/health", nil)
	if err != nil {
		return fmt.Errorf("search: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("search: engine unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode >= 300 {
		return fmt.Errorf("search: cluster health returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// requestError carries a non-2xx engine response for classification.
type requestError struct {
	// status is the HTTP status code.
	status int
	// body is the raw response body.
	body string
}

// Error summarises the engine rejection, preferring the engine's own reason.
func (e *requestError) Error() string {
	var ee engineError
	if err := json.Unmarshal([]byte(e.body), &ee); err == nil && ee.Error.Reason != "" {
		return fmt.Sprintf("search: engine returned HTTP %d: %s: %s", e.status, ee.Error.Type, ee.Error.Reason)
	}
	return fmt.Sprintf("search: engine returned HTTP %d", e.status)
}

// isPipelineParamError reports whether err is an HTTP 400 rejection naming
// the search_pipeline request parameter — the signature of an engine version
// that predates search pipelines. Only this exact failure triggers the
// single-retry fallback; all other errors surface unchanged.
func isPipelineParamError(err error) bool {
	var re *requestError
	if !errors.As(err, &re) {
		return false
	}
	return re.status == http.StatusBadRequest && strings.Contains(re.body, "search_pipeline")
}
