package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d3vah/askdocs-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// AskTimeout caps the total duration of a single /api/ask request,
	// including retrieval and the full generation stream.
	AskTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metric registrations. Defaults to
	// a fresh registry shared with MetricsGatherer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. Must gather from the
	// same registry the metrics were registered into.
	MetricsGatherer prometheus.Gatherer
}

// asker is the interface the ask and search handlers call into.
// *rag.Pipeline satisfies it; tests inject a fake.
type asker interface {
	// Answer streams the generated answer for question to w and returns the
	// complete answer text.
	Answer(ctx context.Context, question string, topK int, w io.Writer) (string, error)
	// Retrieve returns the top-k hybrid search hits for question.
	Retrieve(ctx context.Context, question string, topK int) ([]rag.Hit, error)
}

// Server is the HTTP server that exposes the question-answering pipeline.
type Server struct {
	// asker handles all ask and search requests; *rag.Pipeline in production,
	// overridden by a fake in tests.
	asker asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TopK is the number of documents to retrieve. 0 uses the server default.
	TopK int `json:"topK,omitempty"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the search query text.
	Query string `json:"query"`
	// TopK is the number of hits to return. 0 uses the server default.
	TopK int `json:"topK,omitempty"`
}

// searchHit is one entry in the JSON response for POST /api/search.
type searchHit struct {
	// Score is the engine-assigned hybrid relevance score.
	Score float64 `json:"score"`
	// Text is the chunk text.
	Text string `json:"text"`
	// DocName is the source document name.
	DocName string `json:"docName"`
	// Metadata holds any additional source fields.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Hits are the retrieved chunks in engine score order.
	Hits []searchHit `json:"hits"`
}
