package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d3vah/askdocs-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fake asker for handler tests
// ---------------------------------------------------------------------------

// fakeAsker implements the asker interface for tests.
// It writes a fixed answer to the writer and returns configurable values.
type fakeAsker struct {
	// answer is written verbatim to the writer on each Answer call.
	answer string
	// hits is returned by Retrieve.
	hits []rag.Hit
	// err is returned as the error value from both methods.
	err error
	// gotTopK records the topK passed to the last call.
	gotTopK int
}

func (f *fakeAsker) Answer(_ context.Context, _ string, topK int, w io.Writer) (string, error) {
	f.gotTopK = topK
	if f.err != nil {
		return "", f.err
	}
	_, _ = fmt.Fprint(w, f.answer)
	return f.answer, nil
}

func (f *fakeAsker) Retrieve(_ context.Context, _ string, topK int) ([]rag.Hit, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// newTestServer builds a *Server wired with a default fake asker and an
// isolated metrics registry.
func newTestServer() *Server {
	return newAskTestServer(&fakeAsker{})
}

// newAskTestServer builds a *Server wired with the given asker fake.
func newAskTestServer(a asker) *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		asker: a,
		cfg: &Config{
			AskTimeout:      time.Minute,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
}

// ---------------------------------------------------------------------------
// POST /api/ask — validation error paths
// ---------------------------------------------------------------------------

func TestHandleAsk_MissingQuestion(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(&fakeAsker{})
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"topK":3}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(&fakeAsker{})
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/ask — happy path (fake asker, SSE response)
// ---------------------------------------------------------------------------

// TestHandleAsk_Success verifies that a valid request produces an SSE stream
// carrying the answer text and a "done" event. httptest.ResponseRecorder
// implements http.Flusher so the handler's flusher check passes without a
// real connection.
func TestHandleAsk_Success(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{answer: "Kubernetes is a container orchestrator."}
	s := newAskTestServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"what is kubernetes?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	body := w.Body.String()

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: expected text/event-stream, got %q", ct)
	}
	if !strings.Contains(body, "data: Kubernetes is a container orchestrator.") {
		t.Errorf("expected answer in SSE body, got: %s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("expected SSE done event in body, got: %s", body)
	}
	if !strings.Contains(body, "[DONE]") {
		t.Errorf("expected [DONE] sentinel in body, got: %s", body)
	}
}

// TestHandleAsk_TopKPassedThrough verifies the topK request field reaches
// the pipeline unchanged.
func TestHandleAsk_TopKPassedThrough(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{answer: "ok"}
	s := newAskTestServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"q","topK":7}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if a.gotTopK != 7 {
		t.Errorf("topK: expected 7, got %d", a.gotTopK)
	}
}

// TestHandleAsk_PipelineError verifies that when the pipeline returns an
// error, the SSE stream includes an "error" event and the response is still
// 200 (SSE errors are delivered in-band, not via HTTP status).
func TestHandleAsk_PipelineError(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{err: fmt.Errorf("LLM unavailable")}
	s := newAskTestServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Errorf("expected error event in body, got: %s", body)
	}
	if !strings.Contains(body, "LLM unavailable") {
		t.Errorf("expected error message in body, got: %s", body)
	}
}

// ---------------------------------------------------------------------------
// POST /api/search
// ---------------------------------------------------------------------------

func TestHandleSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newAskTestServer(&fakeAsker{})
	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleSearch_ReturnsHits(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{hits: []rag.Hit{
		{Score: 0.92, Text: "chunk one", DocName: "guide.md"},
		{Score: 0.41, Text: "chunk two", DocName: "faq.md", Metadata: map[string]string{"section": "intro"}},
	}}
	s := newAskTestServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query":"containers","topK":2}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(resp.Hits))
	}
	if resp.Hits[0].DocName != "guide.md" || resp.Hits[0].Score != 0.92 {
		t.Errorf("hit[0]: got %+v", resp.Hits[0])
	}
	if resp.Hits[1].Metadata["section"] != "intro" {
		t.Errorf("hit[1] metadata: got %+v", resp.Hits[1].Metadata)
	}
	if a.gotTopK != 2 {
		t.Errorf("topK: expected 2, got %d", a.gotTopK)
	}
}

func TestHandleSearch_EngineError(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{err: fmt.Errorf("connection refused")}
	s := newAskTestServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query":"containers"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}
