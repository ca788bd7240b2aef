package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/d3vah/askdocs-go/internal/embedder"
	"github.com/d3vah/askdocs-go/internal/rag"
	"github.com/d3vah/askdocs-go/internal/search"
)

// buildSearchClient constructs the OpenSearch client from environment
// configuration and verifies cluster connectivity. Connectivity failure is
// fatal; a missing search pipeline is not — it is logged as a warning and
// search proceeds in degraded (unnormalised) scoring mode.
func buildSearchClient(ctx context.Context, log *slog.Logger) (*search.Client, error) {
	client, err := search.NewClient(&search.Config{
		Host:         getEnvOrDefault("OPENSEARCH_HOST", "localhost"),
		Port:         getEnvInt("OPENSEARCH_PORT", 9200),
		Index:        getEnvOrDefault("OPENSEARCH_INDEX", "askdocs"),
		Pipeline:     getEnvOrDefault("OPENSEARCH_PIPELINE", "askdocs-hybrid"),
		TextField:    getEnvOrDefault("OPENSEARCH_TEXT_FIELD", "text"),
		VectorField:  getEnvOrDefault("OPENSEARCH_VECTOR_FIELD", "embedding"),
		DocNameField: getEnvOrDefault("OPENSEARCH_DOC_NAME_FIELD", "doc_name"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure search client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("search engine unreachable: %w", err)
	}

	if err := client.CheckPipeline(ctx); err != nil {
		if errors.Is(err, search.ErrPipelineMissing) {
			log.Warn("search pipeline not found — hybrid scores will not be normalised",
				slog.String("pipeline", getEnvOrDefault("OPENSEARCH_PIPELINE", "askdocs-hybrid")),
				slog.String("hint", "run `askdocs ingest --setup` to create it"),
			)
		} else {
			log.Warn("search pipeline check failed", slog.Any("error", err))
		}
	}

	return client, nil
}

// buildQueryEmbedder constructs the embedding backend from environment
// configuration, wrapped with the query-side prefix when asymmetric
// embedding is enabled.
func buildQueryEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	return embedder.ForQueries(emb, embedder.Asymmetric()), nil
}

// buildPassageEmbedder is the ingest-side counterpart of buildQueryEmbedder.
func buildPassageEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	return embedder.ForPassages(emb, embedder.Asymmetric()), nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
