package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/d3vah/askdocs-go/internal/logging"
	"github.com/d3vah/askdocs-go/internal/provider"
	"github.com/d3vah/askdocs-go/internal/rag"
)

// NewAskCmd constructs the `askdocs ask` command, which answers a single
// natural language question against the ingested document index and streams
// the answer to stdout.
func NewAskCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the ingested documents",
		Long: `Ask a natural language question against the ingested document index.

The question is embedded and matched with hybrid lexical + vector search;
the top documents are composed into a prompt and the answer is streamed to
stdout, grounded in those documents.

Examples:
  askdocs ask "how do I rotate the signing key?"
  askdocs ask --top-k 10 "what changed between v2 and v3 of the API?"
  MODEL_PROVIDER=openai askdocs ask "summarise the deployment runbook"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			emb, err := buildQueryEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			client, err := buildSearchClient(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			pipeline, err := rag.New(&rag.Config{
				Embedder:  emb,
				Searcher:  client,
				ChatModel: chatModel,
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise pipeline: %w", err)
			}

			question := args[0]
			log.Debug("asking", slog.String("question", question), slog.Int("top_k", topK))

			_, err = pipeline.Answer(ctx, question, topK, os.Stdout) //nolint:wrapcheck // CLI entry point — error goes directly to cobra
			fmt.Println()
			return err
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of documents to retrieve (default: 5)")

	return cmd
}
