package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Document is a unit of indexed knowledge: one text chunk, its embedding,
// and the name of the document it came from.
type Document struct {
	// ID is the unique identifier for this chunk.
	ID string

	// Text is the chunk's raw text, indexed for lexical search.
	Text string

	// DocName is the originating document name.
	DocName string

	// Embedding is the chunk's dense vector, indexed for k-NN search.
	Embedding []float32

	// Metadata holds additional stored fields (chunk index, source URL, ...).
	Metadata map[string]string
}

// EnsureIndex creates the target index with the hybrid-search mapping if it
// does not already exist: the text field analysed for lexical match, the
// document name as a keyword, and the embedding as a knn_vector of the given
// dimensionality.
func (c *Client) EnsureIndex(ctx context.Context, dimensions int) error {
	exists, err := c.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	mapping := map[string]any{
		"settings": map[string]any{
			"index.knn": true,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				c.cfg.TextField:    map[string]any{"type": "text"},
				c.cfg.DocNameField: map[string]any{"type": "keyword"},
				c.cfg.VectorField: map[string]any{
					"type":      "knn_vector",
					"dimension": dimensions,
				},
			},
		},
	}

	payload, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("search: marshal index mapping: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(c.cfg.Index))
	if _, err := c.doJSON(ctx, http.MethodPut, endpoint, payload); err != nil {
		return fmt.Errorf("search: create index %q: %w", c.cfg.Index, err)
	}
	return nil
}

// EnsurePipeline creates (or overwrites) the configured search pipeline with
// a normalization processor: min-max score normalisation and an arithmetic
// mean fusing the lexical and vector sub-scores. No-op when no pipeline is
// configured.
func (c *Client) EnsurePipeline(ctx context.Context) error {
	if c.cfg.Pipeline == "" {
		return nil
	}

	body := map[string]any{
		"description": "post processor for hybrid lexical+vector search",
		"phase_results_processors": []any{
			map[string]any{
				"normalization-processor": map[string]any{
					"normalization": map[string]any{"technique": "min_max"},
					"combination": map[string]any{
						"technique": "arithmetic_mean",
						"parameters": map[string]any{
							"weights": []float64{0.3, 0.7},
						},
					},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("search: marshal pipeline body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/_search/pipeline/%s", c.baseURL, url.PathEscape(c.cfg.Pipeline))
	if _, err := c.doJSON(ctx, http.MethodPut, endpoint, payload); err != nil {
		return fmt.Errorf("search: create pipeline %q: %w", c.cfg.Pipeline, err)
	}
	return nil
}

// Bulk indexes a batch of documents using the engine's NDJSON bulk API.
// Documents with an existing ID are overwritten.
func (c *Client) Bulk(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]any{
			"index": map[string]any{"_index": c.cfg.Index, "_id": doc.ID},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("search: encode bulk action: %w", err)
		}

		source := map[string]any{
			c.cfg.TextField:    doc.Text,
			c.cfg.DocNameField: doc.DocName,
			c.cfg.VectorField:  doc.Embedding,
		}
		for k, v := range doc.Metadata {
			source[k] = v
		}
		if err := enc.Encode(source); err != nil {
			return fmt.Errorf("search: encode bulk document: %w", err)
		}
	}

	endpoint := c.baseURL + "/_bulk?refresh=true"
	body, err := c.doJSON(ctx, http.MethodPost, endpoint, buf.Bytes())
	if err != nil {
		return fmt.Errorf("search: bulk index %d documents: %w", len(docs), err)
	}

	// The bulk API reports per-item failures in a 200 response, so the body
	// must be inspected even on success.
	var result bulkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("search: decode bulk response: %w", err)
	}
	if result.Errors {
		var failed []string
		for _, item := range result.Items {
			for _, r := range item {
				if r.Error != nil {
					failed = append(failed, fmt.Sprintf("%s: %s: %s", r.ID, r.Error.Type, r.Error.Reason))
				}
			}
		}
		return fmt.Errorf("search: bulk index rejected %d of %d documents: %s",
			len(failed), len(docs), strings.Join(failed, "; "))
	}
	return nil
}

// bulkResponse is the engine's bulk API response, reduced to the fields
// needed to detect per-item failures. Each item is keyed by its action
// ("index" here).
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// indexExists reports whether the target index is present on the engine.
func (c *Client) indexExists(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(c.cfg.Index))
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("search: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("search: index check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("search: index check returned HTTP %d", resp.StatusCode)
	}
}

// doJSON issues one JSON request, treats any non-2xx response as an error,
// and returns the response body so callers can inspect success payloads.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &requestError{status: resp.StatusCode, body: string(body)}
	}
	return body, nil
}
