package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

// newTestClient points a Client at the given test server.
func newTestClient(t *testing.T, srv *httptest.Server, pipeline string) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	c, err := NewClient(&Config{
		Host:     u.Hostname(),
		Port:     port,
		Index:    "docs",
		Pipeline: pipeline,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

const sampleResponse = `{
  "hits": {
    "hits": [
      {"_score": 0.92, "_source": {"text": "first chunk", "doc_name": "guide.pdf", "chunk_index": 3}},
      {"_score": 0.41, "_source": {"text": "second chunk", "doc_name": "faq.md"}}
    ]
  }
}`

func Test_Search_MapsHitsInEngineOrder(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs/_search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("search_pipeline"); got != "hybrid-pipeline" {
			t.Errorf("search_pipeline param = %q, want hybrid-pipeline", got)
		}
		io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "hybrid-pipeline")
	hits, err := c.Search(context.Background(), "question", []float32{0.5}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Text != "first chunk" || hits[0].DocName != "guide.pdf" {
		t.Errorf("hit 0 = %+v", hits[0])
	}
	if hits[0].Score != 0.92 {
		t.Errorf("hit 0 score = %v, want 0.92", hits[0].Score)
	}
	if hits[0].Metadata["chunk_index"] != "3" {
		t.Errorf("hit 0 metadata = %v", hits[0].Metadata)
	}
	if hits[1].Text != "second chunk" {
		t.Errorf("hit 1 = %+v", hits[1])
	}
}

func Test_Search_RetriesOnceWithoutPipelineParam(t *testing.T) {
	t.Parallel()

	var bodies []string
	var pipelineParams []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		pipelineParams = append(pipelineParams, r.URL.Query().Get("search_pipeline"))

		if r.URL.Query().Has("search_pipeline") {
			// Engines that predate search pipelines reject the parameter.
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"type":"illegal_argument_exception","reason":"request [/docs/_search] contains unrecognized parameter: [search_pipeline]"},"status":400}`)
			return
		}
		io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "hybrid-pipeline")
	hits, err := c.Search(context.Background(), "question", []float32{0.5}, 2)
	if err != nil {
		t.Fatalf("Search after fallback: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("want 2 hits from fallback response, got %d", len(hits))
	}

	if len(bodies) != 2 {
		t.Fatalf("want exactly 2 requests (original + fallback), got %d", len(bodies))
	}
	if bodies[0] != bodies[1] {
		t.Errorf("fallback body differs from original:\n%s\nvs\n%s", bodies[0], bodies[1])
	}
	if pipelineParams[0] != "hybrid-pipeline" || pipelineParams[1] != "" {
		t.Errorf("pipeline params = %v, want [hybrid-pipeline \"\"]", pipelineParams)
	}
}

func Test_Search_NoRetryOnOtherErrors(t *testing.T) {
	t.Parallel()

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"type":"parsing_exception","reason":"unknown query [hybird]"},"status":400}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "hybrid-pipeline")
	_, err := c.Search(context.Background(), "question", []float32{0.5}, 2)
	if err == nil {
		t.Fatalf("want error, got nil")
	}
	if requests != 1 {
		t.Errorf("want exactly 1 request for a non-pipeline 400, got %d", requests)
	}
	if !strings.Contains(err.Error(), "parsing_exception") {
		t.Errorf("error should carry the engine reason, got %q", err)
	}
}

func Test_Search_ConnectivityFailureIsFatal(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed up front — connection refused

	c := newTestClient(t, srv, "")
	_, err := c.Search(context.Background(), "question", []float32{0.5}, 2)
	if err == nil {
		t.Fatalf("want connectivity error, got nil")
	}
}

func Test_CheckPipeline_Missing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_search/pipeline/hybrid-pipeline" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "hybrid-pipeline")
	err := c.CheckPipeline(context.Background())
	if !errors.Is(err, ErrPipelineMissing) {
		t.Errorf("want ErrPipelineMissing, got %v", err)
	}
}

func Test_CheckPipeline_NoneConfigured(t *testing.T) {
	t.Parallel()
	c, err := NewClient(&Config{Index: "docs"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.CheckPipeline(context.Background()); err != nil {
		t.Errorf("want nil for unconfigured pipeline, got %v", err)
	}
}

func Test_EnsureIndex_SkipsExisting(t *testing.T) {
	t.Parallel()
	puts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			puts++
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	if err := c.EnsureIndex(context.Background(), 768); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if puts != 0 {
		t.Errorf("index exists but was recreated (%d PUTs)", puts)
	}
}

func Test_EnsureIndex_CreatesMapping(t *testing.T) {
	t.Parallel()
	var mapping map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
				t.Errorf("decode mapping: %v", err)
			}
			io.WriteString(w, `{"acknowledged":true}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	if err := c.EnsureIndex(context.Background(), 768); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	props := mapping["mappings"].(map[string]any)["properties"].(map[string]any)
	vec := props["embedding"].(map[string]any)
	if vec["type"] != "knn_vector" {
		t.Errorf("embedding field type = %v, want knn_vector", vec["type"])
	}
	if vec["dimension"].(float64) != 768 {
		t.Errorf("embedding dimension = %v, want 768", vec["dimension"])
	}
}

func Test_Bulk_EncodesActionAndSourcePairs(t *testing.T) {
	t.Parallel()
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		raw = string(body)
		io.WriteString(w, `{"errors":false}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	docs := []Document{
		{ID: "a-0", Text: "alpha", DocName: "a.md", Embedding: []float32{0.1}},
		{ID: "b-0", Text: "beta", DocName: "b.md", Embedding: []float32{0.2}, Metadata: map[string]string{"source_url": "http://example.com/b"}},
	}
	if err := c.Bulk(context.Background(), docs); err != nil {
		t.Fatalf("Bulk: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) != 4 {
		t.Fatalf("want 4 NDJSON lines (2 action+source pairs), got %d", len(lines))
	}

	var action map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &action); err != nil {
		t.Fatalf("action line is not JSON: %v", err)
	}
	idx := action["index"].(map[string]any)
	if idx["_id"] != "a-0" || idx["_index"] != "docs" {
		t.Errorf("action = %v", action)
	}

	var source map[string]any
	if err := json.Unmarshal([]byte(lines[3]), &source); err != nil {
		t.Fatalf("source line is not JSON: %v", err)
	}
	if source["text"] != "beta" || source["source_url"] != "http://example.com/b" {
		t.Errorf("source = %v", source)
	}
}

func Test_Bulk_ItemFailuresReturnError(t *testing.T) {
	t.Parallel()
	// The bulk API answers 200 even when items fail; failures only show up
	// in the response body.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errors":true,"items":[
			{"index":{"_id":"a-0","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [embedding]"}}},
			{"index":{"_id":"b-0","status":201}}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	docs := []Document{
		{ID: "a-0", Text: "alpha", DocName: "a.md", Embedding: []float32{0.1}},
		{ID: "b-0", Text: "beta", DocName: "b.md", Embedding: []float32{0.2}},
	}

	err := c.Bulk(context.Background(), docs)
	if err == nil {
		t.Fatal("expected error when the engine rejects items in a 200 response")
	}
	if !strings.Contains(err.Error(), "rejected 1 of 2") {
		t.Errorf("error should count rejected documents: %v", err)
	}
	if !strings.Contains(err.Error(), "a-0") || !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("error should name the failed item and reason: %v", err)
	}
}

func Test_Bulk_AllItemsAccepted(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errors":false,"items":[{"index":{"_id":"a-0","status":201}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	if err := c.Bulk(context.Background(), []Document{{ID: "a-0", Text: "alpha", Embedding: []float32{0.1}}}); err != nil {
		t.Fatalf("Bulk: %v", err)
	}
}
