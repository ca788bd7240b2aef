package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/d3vah/askdocs-go/internal/embedder"
	"github.com/d3vah/askdocs-go/internal/ingestion"
	"github.com/d3vah/askdocs-go/internal/logging"
)

// NewIngestCmd constructs the `askdocs ingest` command, which fetches,
// chunks, embeds, and indexes documentation pages into the search engine.
func NewIngestCmd() *cobra.Command {
	var docName string
	var docType string
	var urls []string
	var setup bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documentation pages into the search index",
		Long: `Fetch and index documentation pages into the OpenSearch index.

Each page is chunked, embedded passage-side, and bulk-indexed. Ingested
documents are what 'askdocs ask' retrieves and grounds its answers in.

Required environment variables:
  OPENSEARCH_HOST      Search engine hostname (default: localhost)
  OPENSEARCH_PORT      Search engine HTTP port (default: 9200)
  OPENSEARCH_INDEX     Index name (default: askdocs)
  OPENSEARCH_PIPELINE  Hybrid score-normalisation pipeline (default: askdocs-hybrid)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Metadata flags (--doc-name, --doc-type) are optional. When omitted, metadata
is auto-inferred from the URL path (e.g. /tutorials/ URLs are tagged as
tutorials). Explicit flags override inference.

Pass --setup to create the index mapping and the hybrid search pipeline
before indexing. Safe to repeat — existing resources are left untouched.

Examples:
  askdocs ingest --setup --url https://example.com/docs/getting-started
  askdocs ingest --url https://example.com/guides/scaling --url https://example.com/api/v2/endpoints
  askdocs ingest --doc-name ops-handbook --doc-type guide --url https://wiki.internal/ops`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(urls) == 0 && !setup {
				return fmt.Errorf("ingest: at least one --url is required (or --setup to only create the index)")
			}

			emb, err := buildPassageEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))),
				slog.Bool("asymmetric", embedder.Asymmetric()),
			)

			client, err := buildSearchClient(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			if setup {
				embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
				dimensions := embedder.DefaultDimensions(embBackend)
				if err := client.EnsureIndex(ctx, dimensions); err != nil {
					return fmt.Errorf("ingest: failed to ensure index: %w", err)
				}
				if err := client.EnsurePipeline(ctx); err != nil {
					return fmt.Errorf("ingest: failed to ensure search pipeline: %w", err)
				}
				log.Info("index and search pipeline ready", slog.Int("dimensions", dimensions))
				if len(urls) == 0 {
					return nil
				}
			}

			pipeline, err := ingestion.NewPipeline(emb, client, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			docNameSet := cmd.Flags().Changed("doc-name")
			docTypeSet := cmd.Flags().Changed("doc-type")

			sources := make([]ingestion.Source, 0, len(urls))
			for _, u := range urls {
				src := ingestion.Source{URL: u}
				if docNameSet {
					src.DocName = docName
				}
				if docTypeSet {
					src.DocType = docType
				}

				inferred := ingestion.InferMetadata(u)
				effName := src.DocName
				if effName == "" {
					effName = inferred.DocName
				}
				effType := src.DocType
				if effType == "" {
					effType = inferred.DocType
				}
				log.Info("source metadata",
					slog.String("url", u),
					slog.String("doc_name", effName),
					slog.String("doc_type", effType),
				)
				sources = append(sources, src)
			}

			log.Info("starting ingestion", slog.Int("sources", len(sources)))

			if err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&docName, "doc-name", "n", "", "Document name stored with each chunk (default: inferred from URL)")
	cmd.Flags().StringVarP(&docType, "doc-type", "d", "", "Documentation type (reference, tutorial, guide, api, changelog; default: inferred)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Documentation URL to ingest (repeatable)")
	cmd.Flags().BoolVar(&setup, "setup", false, "Create the index mapping and hybrid search pipeline before indexing")

	return cmd
}
