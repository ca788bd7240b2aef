package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/d3vah/askdocs-go/internal/logging"
)

// NewSearchCmd constructs the `askdocs search` command, which runs a raw
// hybrid search against the document index and prints the ranked hits
// without involving the LLM. Useful for tuning the index and inspecting
// what the ask pipeline would retrieve.
func NewSearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a raw hybrid search and print the ranked hits",
		Long: `Run a hybrid lexical + vector search against the document index.

Prints each hit's normalised score, document name, and text. No LLM call is
made — this command is for inspecting retrieval quality directly.

Examples:
  askdocs search "key rotation"
  askdocs search --top-k 10 "deployment runbook"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := buildQueryEmbedder(log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			client, err := buildSearchClient(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			query := args[0]
			vectors, err := emb.Embed(ctx, []string{query})
			if err != nil {
				return fmt.Errorf("search: failed to embed query: %w", err)
			}
			if len(vectors) != 1 {
				return fmt.Errorf("search: embedder returned %d vectors for one query", len(vectors))
			}

			if topK <= 0 {
				topK = 5
			}
			hits, err := client.Search(ctx, query, vectors[0], topK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(hits) == 0 {
				fmt.Println("no results")
				return nil
			}

			log.Debug("search complete", slog.String("query", query), slog.Int("hits", len(hits)))

			for i, hit := range hits {
				fmt.Printf("%d. [%.4f] %s\n", i+1, hit.Score, hit.DocName)
				if src := hit.Metadata["source"]; src != "" {
					fmt.Printf("   source: %s\n", src)
				}
				fmt.Printf("   %s\n\n", hit.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of documents to retrieve (default: 5)")

	return cmd
}
